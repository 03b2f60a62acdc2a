package metrics

import (
	"context"
	"io"
	"time"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// InstrumentedStore times every call to the wrapped blob store.
type InstrumentedStore struct {
	next    simplemedia.BlobStore
	backend string
	m       *Metrics
}

func InstrumentStore(backend string, next simplemedia.BlobStore, m *Metrics) *InstrumentedStore {
	return &InstrumentedStore{next: next, backend: backend, m: m}
}

func (s *InstrumentedStore) observe(operation string, start time.Time, err error) {
	s.m.RecordStoreOperation(s.backend, operation, err, time.Since(start).Seconds())
}

func (s *InstrumentedStore) UploadWithParams(ctx context.Context, reader io.Reader, params simplemedia.UploadParams) error {
	start := time.Now()
	err := s.next.UploadWithParams(ctx, reader, params)
	s.observe("upload", start, err)
	return err
}

func (s *InstrumentedStore) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := s.next.Download(ctx, objectKey)
	s.observe("download", start, err)
	return rc, err
}

func (s *InstrumentedStore) GetObjectMeta(ctx context.Context, objectKey string) (*simplemedia.ObjectMeta, error) {
	start := time.Now()
	meta, err := s.next.GetObjectMeta(ctx, objectKey)
	s.observe("head", start, err)
	return meta, err
}

func (s *InstrumentedStore) GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error) {
	start := time.Now()
	url, err := s.next.GetDownloadURL(ctx, objectKey, downloadFilename)
	s.observe("presign", start, err)
	return url, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, objectKey string) error {
	start := time.Now()
	err := s.next.Delete(ctx, objectKey)
	s.observe("delete", start, err)
	return err
}

var _ simplemedia.BlobStore = (*InstrumentedStore)(nil)
