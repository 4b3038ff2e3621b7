package notify

import (
	"context"

	"github.com/bizkut/EveSalesNotification/internal/model"
)

// Sink delivers rendered notifications. Delivery is best-effort: a failed
// send is logged by the implementation and never fails the poll cycle that
// produced it.
type Sink interface {
	Send(ctx context.Context, n model.Notification) error
}

// NopSink discards everything; used in tests and dry runs.
type NopSink struct{}

func (NopSink) Send(context.Context, model.Notification) error { return nil }
