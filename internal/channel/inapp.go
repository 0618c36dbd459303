package channel

import (
	"context"

	"github.com/CareOpsHQ/mednotify/internal/domain/notification"
)

// InApp delivery is defined as "visible to the in-app inbox", which the
// stored notification row already satisfies. The adapter exists so the
// channel fits the uniform interface.
type InApp struct{}

func NewInApp() *InApp { return &InApp{} }

func (*InApp) Channel() notification.Channel { return notification.ChannelInApp }

func (*InApp) Send(context.Context, *notification.Notification) Outcome {
	return OK("stored to in-app inbox")
}
