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

	"github.com/CareOpsHQ/mednotify/internal/domain/notification"
)

type SMSConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	APIURL  string        `mapstructure:"api_url"`
	APIKey  string        `mapstructure:"api_key"`
	From    string        `mapstructure:"from"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SMS posts message bodies to an opaque provider API. The core does not
// depend on any provider's wire format beyond accept/reject.
type SMS struct {
	cfg   SMSConfig
	httpc *http.Client
	log   *zap.Logger
}

func NewSMS(cfg SMSConfig, httpc *http.Client, log *zap.Logger) *SMS {
	if httpc == nil {
		httpc = &http.Client{Timeout: cfg.Timeout}
	}
	return &SMS{cfg: cfg, httpc: httpc, log: log.With(zap.String("channel", "sms"))}
}

func (s *SMS) Channel() notification.Channel { return notification.ChannelSMS }

func (s *SMS) Send(ctx context.Context, n *notification.Notification) Outcome {
	if !s.cfg.Enabled || s.cfg.APIURL == "" {
		// nothing to retry toward
		return FailPermanent("sms provider disabled")
	}
	if n.Destination == "" {
		return FailPermanent("no phone number on record")
	}

	payload, _ := json.Marshal(map[string]string{
		"from": s.cfg.From,
		"to":   n.Destination,
		"body": n.Body,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return Fail("build request: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		s.log.Warn("sms provider unreachable", zap.String("notification_id", n.ID), zap.Error(err))
		return Fail("provider: " + err.Error())
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Fail(fmt.Sprintf("provider returned %d", resp.StatusCode))
	}
	return OK("accepted by sms provider")
}
