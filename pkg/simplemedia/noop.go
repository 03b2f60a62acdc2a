package simplemedia

import (
	"context"

	"github.com/google/uuid"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) MediaStored(ctx context.Context, media *Media) error { return nil }

func (n *NoopEventSink) MediaAssociated(ctx context.Context, media *Media) error { return nil }

func (n *NoopEventSink) MediaDuplicate(ctx context.Context, media *Media) error { return nil }

func (n *NoopEventSink) UploadFailed(ctx context.Context, req *UploadRequest, err error) error {
	return nil
}

func (n *NoopEventSink) MediaDeleted(ctx context.Context, id uuid.UUID) error { return nil }
