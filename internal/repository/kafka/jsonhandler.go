package kafka

import (
	"context"
	"encoding/json"
	"fmt"
)

// JSONHandler decodes the message value into E before invoking the typed
// handler.
func JSONHandler[E any](handle func(context.Context, []byte, *E) error) Handler {
	return func(ctx context.Context, key, value []byte) error {
		var ev E
		if err := json.Unmarshal(value, &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		return handle(ctx, key, &ev)
	}
}
