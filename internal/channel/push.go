package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/CareOpsHQ/mednotify/internal/domain/device"
	"github.com/CareOpsHQ/mednotify/internal/domain/notification"
)

type PushConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	APIURL  string        `mapstructure:"api_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Push fans one notification out across all of the recipient's active
// devices. The send succeeds when at least one device accepts it; a
// provider-confirmed invalid token deactivates that device without failing
// the whole send.
type Push struct {
	cfg     PushConfig
	devices device.Repo
	httpc   *http.Client
	log     *zap.Logger
}

func NewPush(cfg PushConfig, devices device.Repo, httpc *http.Client, log *zap.Logger) *Push {
	if httpc == nil {
		httpc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Push{cfg: cfg, devices: devices, httpc: httpc, log: log.With(zap.String("channel", "push"))}
}

func (p *Push) Channel() notification.Channel { return notification.ChannelPush }

func (p *Push) Send(ctx context.Context, n *notification.Notification) Outcome {
	if !p.cfg.Enabled || p.cfg.APIURL == "" {
		return FailPermanent("push provider disabled")
	}

	devs, err := p.devices.ListActive(ctx, n.RecipientID)
	if err != nil {
		return Fail("list devices: " + err.Error())
	}
	if len(devs) == 0 {
		return FailPermanent("no active devices")
	}

	accepted, transient := 0, 0
	for _, d := range devs {
		switch p.sendOne(ctx, d.Token, n) {
		case pushAccepted:
			accepted++
		case pushInvalidToken:
			if err := p.devices.Deactivate(ctx, d.ID); err != nil {
				p.log.Warn("deactivate device", zap.Int64("device_id", d.ID), zap.Error(err))
			} else {
				p.log.Info("deactivated invalid device token", zap.Int64("device_id", d.ID))
			}
		case pushTransientErr:
			transient++
		}
	}

	switch {
	case accepted > 0:
		return OK(fmt.Sprintf("accepted by %d of %d devices", accepted, len(devs)))
	case transient > 0:
		return Fail(fmt.Sprintf("all %d device sends failed transiently", len(devs)))
	default:
		return FailPermanent("all device tokens invalid")
	}
}

type pushResult int

const (
	pushAccepted pushResult = iota
	pushInvalidToken
	pushTransientErr
)

func (p *Push) sendOne(ctx context.Context, token string, n *notification.Notification) pushResult {
	payload, _ := json.Marshal(map[string]string{
		"token": token,
		"title": n.Subject,
		"body":  n.Body,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return pushTransientErr
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.httpc.Do(req)
	if err != nil {
		return pushTransientErr
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return pushAccepted
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// provider reports the registration as permanently invalid
		return pushInvalidToken
	default:
		return pushTransientErr
	}
}
