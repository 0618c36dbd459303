package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultIngestPolicy is the retry policy used when handling an inbound
// platform event. The event stays uncommitted until the handler succeeds or
// the policy gives up.
func DefaultIngestPolicy(log *zap.Logger) Policy {
	return Policy{
		Attempts: 6,
		Backoff:  ExpoJitter{Base: 200 * time.Millisecond, Max: 30 * time.Second, Jitter: 0.2},
		Retryable: func(err error) bool {
			return err != nil
		},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Warn("ingest retry", zap.Int("attempt", i+1), zap.Error(err))
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Error("ingest retries exhausted", zap.Error(err))
			}
		},
	}
}
