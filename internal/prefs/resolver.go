// Package prefs resolves per-recipient delivery preferences: which channels
// a notification may use and whether quiet hours currently suppress it.
package prefs

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/CareOpsHQ/mednotify/internal/domain/notification"
	"github.com/CareOpsHQ/mednotify/internal/domain/preference"
)

type Resolver struct {
	repo preference.Repo

	// global is the deployment-wide enabled channel list; a channel absent
	// here is off for everyone regardless of per-recipient toggles.
	global map[notification.Channel]bool
}

func NewResolver(repo preference.Repo, globallyEnabled []notification.Channel) *Resolver {
	g := make(map[notification.Channel]bool, len(globallyEnabled))
	for _, c := range globallyEnabled {
		g[c] = true
	}
	return &Resolver{repo: repo, global: g}
}

// EnabledChannels intersects the global channel list with the recipient's
// per-channel toggles. A disabled category yields the empty set regardless
// of channel toggles.
func (r *Resolver) EnabledChannels(ctx context.Context, recipientID int64, category notification.Category) ([]notification.Channel, error) {
	p, err := r.repo.GetOrCreate(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}

	if !p.CategoryEnabled(category) {
		return nil, nil
	}

	var out []notification.Channel
	for _, c := range notification.Channels() {
		if r.global[c] && p.ChannelEnabled(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// InQuietHours reports whether the given instant falls inside the
// recipient's quiet-hours window. Callers decide whether priority bypasses
// the window.
func (r *Resolver) InQuietHours(ctx context.Context, recipientID int64, at time.Time) (bool, error) {
	p, err := r.repo.GetOrCreate(ctx, recipientID)
	if err != nil {
		return false, fmt.Errorf("get preferences: %w", err)
	}

	if p.QuietStart == "" || p.QuietEnd == "" {
		return false, nil
	}
	start, err := ParseClock(p.QuietStart)
	if err != nil {
		return false, fmt.Errorf("quiet_start: %w", err)
	}
	end, err := ParseClock(p.QuietEnd)
	if err != nil {
		return false, fmt.Errorf("quiet_end: %w", err)
	}
	return withinWindow(start, end, at.Hour()*60+at.Minute()), nil
}

// withinWindow treats start > end as a window wrapping midnight.
func withinWindow(start, end, t int) bool {
	if start == end {
		return false
	}
	if start > end {
		return t >= start || t <= end
	}
	return t >= start && t <= end
}

// ParseClock parses "HH:MM" into minutes from midnight.
func ParseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("bad clock value %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return h*60 + m, nil
}
