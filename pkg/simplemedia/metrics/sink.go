package metrics

import (
	"context"

	"github.com/google/uuid"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// EventSink counts upload outcomes. It never fails.
type EventSink struct {
	m *Metrics
}

func NewEventSink(m *Metrics) *EventSink {
	return &EventSink{m: m}
}

func (s *EventSink) MediaStored(ctx context.Context, media *simplemedia.Media) error {
	s.m.UploadsTotal.WithLabelValues(string(simplemedia.OutcomeCreated)).Inc()
	s.m.UploadBytesTotal.WithLabelValues(media.MimeType).Add(float64(media.SizeBytes))
	return nil
}

func (s *EventSink) MediaAssociated(ctx context.Context, media *simplemedia.Media) error {
	s.m.UploadsTotal.WithLabelValues(string(simplemedia.OutcomeAssociated)).Inc()
	return nil
}

func (s *EventSink) MediaDuplicate(ctx context.Context, media *simplemedia.Media) error {
	s.m.UploadsTotal.WithLabelValues(string(simplemedia.OutcomeDuplicate)).Inc()
	return nil
}

func (s *EventSink) UploadFailed(ctx context.Context, req *simplemedia.UploadRequest, err error) error {
	s.m.UploadsTotal.WithLabelValues(simplemedia.KindOf(err).String()).Inc()
	return nil
}

func (s *EventSink) MediaDeleted(ctx context.Context, id uuid.UUID) error {
	s.m.DeletesTotal.Inc()
	return nil
}

var _ simplemedia.EventSink = (*EventSink)(nil)
