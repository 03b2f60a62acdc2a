package simplemedia_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/tendant/simple-media/pkg/logger"
	"github.com/tendant/simple-media/pkg/simplemedia"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
)

type captureSink struct {
	events []string
	err    error
}

func (c *captureSink) MediaStored(ctx context.Context, media *simplemedia.Media) error {
	c.events = append(c.events, "stored")
	return c.err
}

func (c *captureSink) MediaAssociated(ctx context.Context, media *simplemedia.Media) error {
	c.events = append(c.events, "associated")
	return c.err
}

func (c *captureSink) MediaDuplicate(ctx context.Context, media *simplemedia.Media) error {
	c.events = append(c.events, "duplicate")
	return c.err
}

func (c *captureSink) UploadFailed(ctx context.Context, req *simplemedia.UploadRequest, err error) error {
	c.events = append(c.events, "failed:"+simplemedia.KindOf(err).String())
	return c.err
}

func (c *captureSink) MediaDeleted(ctx context.Context, id uuid.UUID) error {
	c.events = append(c.events, "deleted")
	return c.err
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestServiceEmitsEvents(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	svc := newService(t, newRecordingRepo(), memorystorage.New(), simplemedia.WithEventSink(sink))

	created, err := svc.Upload(ctx, pngUpload(5))
	require.NoError(t, err)
	_, err = svc.Upload(ctx, pngUpload(5))
	require.NoError(t, err)
	_, err = svc.Upload(ctx, pngUpload(7))
	require.NoError(t, err)
	_, err = svc.Upload(ctx, simplemedia.UploadRequest{FileName: "a.png"})
	require.Error(t, err)
	require.NoError(t, svc.DeleteMedia(ctx, created.Media.ID))

	assert.Equal(t, []string{"stored", "duplicate", "associated", "failed:validation_failed", "deleted"}, sink.events)
}

func TestSinkErrorsDoNotFailUploads(t *testing.T) {
	sink := &captureSink{err: errors.New("sink down")}
	svc := newService(t, newRecordingRepo(), memorystorage.New(), simplemedia.WithEventSink(sink))

	res, err := svc.Upload(context.Background(), pngUpload(5))
	require.NoError(t, err)
	assert.Equal(t, simplemedia.OutcomeCreated, res.Outcome)
}

func TestLogEventSink(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Options{ServiceName: "simple-media", Level: zerolog.DebugLevel, Output: &buf})
	sink := simplemedia.NewLogEventSink(log)
	ctx := context.Background()

	media := &simplemedia.Media{ID: uuid.New(), ContentHash: "abc", ObjectKey: "media/abc", EntityType: "product", EntityID: 5}
	require.NoError(t, sink.MediaStored(ctx, media))
	require.NoError(t, sink.UploadFailed(ctx, &simplemedia.UploadRequest{FileName: "a.png", EntityType: "product", EntityID: 5},
		&simplemedia.Error{Kind: simplemedia.KindProcessingFailed, Op: "store"}))
	require.NoError(t, sink.MediaDeleted(ctx, media.ID))

	lines := logLines(t, &buf)
	require.Len(t, lines, 3)

	assert.Equal(t, "media.stored", lines[0]["message"])
	assert.Equal(t, media.ID.String(), lines[0]["media_id"])
	assert.Equal(t, "media/abc", lines[0]["object_key"])

	assert.Equal(t, "media.upload_failed", lines[1]["message"])
	assert.Equal(t, "warn", lines[1]["level"])
	assert.Equal(t, "processing_failed", lines[1]["kind"])

	assert.Equal(t, "media.deleted", lines[2]["message"])
}

func TestMultiEventSinkCombinesErrors(t *testing.T) {
	first := &captureSink{err: errors.New("first")}
	second := &captureSink{}
	third := &captureSink{err: errors.New("third")}
	multi := simplemedia.MultiEventSink{first, second, third}

	err := multi.MediaStored(context.Background(), &simplemedia.Media{})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	for _, s := range []*captureSink{first, second, third} {
		assert.Equal(t, []string{"stored"}, s.events)
	}

	assert.NoError(t, simplemedia.MultiEventSink{second}.MediaDeleted(context.Background(), uuid.New()))
}

func TestPersistFailureLogsOrphan(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Options{Output: &buf})
	repo := newRecordingRepo()
	repo.createErr = errors.New("constraint violated")
	svc := newService(t, repo, memorystorage.New(), simplemedia.WithLogger(log))

	_, err := svc.Upload(context.Background(), pngUpload(5))
	require.Error(t, err)

	var orphan map[string]any
	for _, line := range logLines(t, &buf) {
		if line["message"] == "media.orphaned_object" {
			orphan = line
		}
	}
	require.NotNil(t, orphan)
	assert.Equal(t, "error", orphan["level"])
	assert.Equal(t, "memory", orphan["storage_backend"])
	assert.NotEmpty(t, orphan["object_key"])
	assert.NotEmpty(t, orphan["content_hash"])
}
