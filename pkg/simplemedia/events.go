package simplemedia

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/tendant/simple-media/pkg/logger"
)

// LogEventSink writes one structured log line per event.
type LogEventSink struct {
	log *logger.Logger
}

func NewLogEventSink(log *logger.Logger) EventSink {
	if log == nil {
		log = logger.Nop()
	}
	return &LogEventSink{log: log}
}

func (s *LogEventSink) mediaFields(ctx context.Context, media *Media) context.Context {
	return s.log.WithFields(ctx, map[string]any{
		"media_id":     media.ID.String(),
		"content_hash": media.ContentHash,
		"object_key":   media.ObjectKey,
		"entity_type":  media.EntityType,
		"entity_id":    media.EntityID,
	})
}

func (s *LogEventSink) MediaStored(ctx context.Context, media *Media) error {
	s.log.Info(s.mediaFields(ctx, media), "media.stored")
	return nil
}

func (s *LogEventSink) MediaAssociated(ctx context.Context, media *Media) error {
	s.log.Info(s.mediaFields(ctx, media), "media.associated")
	return nil
}

func (s *LogEventSink) MediaDuplicate(ctx context.Context, media *Media) error {
	s.log.Info(s.mediaFields(ctx, media), "media.duplicate")
	return nil
}

func (s *LogEventSink) UploadFailed(ctx context.Context, req *UploadRequest, err error) error {
	fields := map[string]any{"kind": KindOf(err).String()}
	if req != nil {
		fields["file_name"] = req.FileName
		fields["entity_type"] = req.EntityType
		fields["entity_id"] = req.EntityID
	}
	s.log.Warn(s.log.WithFields(ctx, fields), "media.upload_failed")
	return nil
}

func (s *LogEventSink) MediaDeleted(ctx context.Context, id uuid.UUID) error {
	s.log.Info(s.log.WithField(ctx, "media_id", id.String()), "media.deleted")
	return nil
}

// MultiEventSink fans events out to several sinks and combines their errors.
type MultiEventSink []EventSink

func (m MultiEventSink) MediaStored(ctx context.Context, media *Media) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.MediaStored(ctx, media))
	}
	return err
}

func (m MultiEventSink) MediaAssociated(ctx context.Context, media *Media) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.MediaAssociated(ctx, media))
	}
	return err
}

func (m MultiEventSink) MediaDuplicate(ctx context.Context, media *Media) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.MediaDuplicate(ctx, media))
	}
	return err
}

func (m MultiEventSink) UploadFailed(ctx context.Context, req *UploadRequest, failure error) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.UploadFailed(ctx, req, failure))
	}
	return err
}

func (m MultiEventSink) MediaDeleted(ctx context.Context, id uuid.UUID) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.MediaDeleted(ctx, id))
	}
	return err
}
