package reminder

import (
	"context"
	"time"
)

// SinkTimeout bounds a single Show call made from a timer callback.
const SinkTimeout = 10 * time.Second

// Sink delivers a fired reminder to the user. Delivery is best effort: a
// returned error is logged and never retried.
type Sink interface {
	Show(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Show(ctx context.Context, n Notification) error { return f(ctx, n) }
