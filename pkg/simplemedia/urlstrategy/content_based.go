package urlstrategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ContentBasedStrategy routes retrieval through the application's own
// content endpoint, so access control stays on the server.
type ContentBasedStrategy struct {
	APIBaseURL string // e.g., "https://api.example.com/api/v1" or "/api/v1"
}

// NewContentBasedStrategy creates a new content-based URL strategy
func NewContentBasedStrategy(apiBaseURL string) *ContentBasedStrategy {
	return &ContentBasedStrategy{
		APIBaseURL: strings.TrimSuffix(apiBaseURL, "/"),
	}
}

func (s *ContentBasedStrategy) GenerateDownloadURL(ctx context.Context, mediaID uuid.UUID, objectKey string, storageBackend string) (string, error) {
	if s.APIBaseURL == "" {
		return "", fmt.Errorf("API base URL not configured")
	}
	return fmt.Sprintf("%s/media/%s/content", s.APIBaseURL, mediaID), nil
}
