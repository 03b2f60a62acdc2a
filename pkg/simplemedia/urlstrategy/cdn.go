package urlstrategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CDNStrategy points retrieval straight at a CDN fronting the object store.
// Object keys are content addressed, so CDN entries never go stale.
type CDNStrategy struct {
	CDNBaseURL string // e.g., "https://cdn.example.com"
}

// NewCDNStrategy creates a new CDN URL strategy
func NewCDNStrategy(cdnBaseURL string) *CDNStrategy {
	return &CDNStrategy{
		CDNBaseURL: strings.TrimSuffix(cdnBaseURL, "/"),
	}
}

func (s *CDNStrategy) GenerateDownloadURL(ctx context.Context, mediaID uuid.UUID, objectKey string, storageBackend string) (string, error) {
	if s.CDNBaseURL == "" {
		return "", fmt.Errorf("CDN base URL not configured")
	}
	if objectKey == "" {
		return "", fmt.Errorf("object key is required for CDN URLs")
	}
	return fmt.Sprintf("%s/%s", s.CDNBaseURL, strings.TrimPrefix(objectKey, "/")), nil
}
