// Package channel holds one delivery adapter per channel behind a uniform
// Send contract. Adapters never panic and never return Go errors upward;
// every result is an Outcome the dispatcher turns into a state transition.
package channel

import (
	"context"

	"github.com/CareOpsHQ/mednotify/internal/domain/notification"
)

type Outcome struct {
	Success bool
	// Permanent marks a failure not worth retrying (missing destination,
	// provider-confirmed invalid token, disabled provider).
	Permanent bool
	Detail    string
}

func OK(detail string) Outcome {
	return Outcome{Success: true, Detail: detail}
}

func Fail(detail string) Outcome {
	return Outcome{Detail: detail}
}

func FailPermanent(detail string) Outcome {
	return Outcome{Permanent: true, Detail: detail}
}

type Adapter interface {
	Channel() notification.Channel
	Send(ctx context.Context, n *notification.Notification) Outcome
}
