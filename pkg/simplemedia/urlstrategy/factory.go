package urlstrategy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// URLStrategy builds retrieval URLs for media records
type URLStrategy interface {
	GenerateDownloadURL(ctx context.Context, mediaID uuid.UUID, objectKey string, storageBackend string) (string, error)
}

// StrategyType names a URL strategy
type StrategyType string

const (
	StrategyTypeCDN              StrategyType = "cdn"
	StrategyTypeContentBased     StrategyType = "content-based"
	StrategyTypeStorageDelegated StrategyType = "storage-delegated"
)

// DefaultAPIBaseURL is where the media routes are mounted
const DefaultAPIBaseURL = "/api/v1"

// Config holds configuration for URL strategy creation
type Config struct {
	Type       StrategyType
	CDNBaseURL string               // For CDN strategy
	APIBaseURL string               // For content-based strategy
	BlobStores map[string]BlobStore // For storage-delegated strategy
}

// NewURLStrategy creates a URL strategy based on the configuration
func NewURLStrategy(config Config) (URLStrategy, error) {
	switch config.Type {
	case StrategyTypeCDN:
		if config.CDNBaseURL == "" {
			return nil, fmt.Errorf("CDN base URL is required for CDN strategy")
		}
		return NewCDNStrategy(config.CDNBaseURL), nil

	case StrategyTypeContentBased, "":
		if config.APIBaseURL == "" {
			config.APIBaseURL = DefaultAPIBaseURL
		}
		return NewContentBasedStrategy(config.APIBaseURL), nil

	case StrategyTypeStorageDelegated:
		if len(config.BlobStores) == 0 {
			return nil, fmt.Errorf("blob stores are required for storage-delegated strategy")
		}
		return NewStorageDelegatedStrategy(config.BlobStores), nil

	default:
		return nil, fmt.Errorf("unknown URL strategy type: %s", config.Type)
	}
}

// NewRecommendedStrategy picks CDN URLs in production when a CDN is
// configured and content-based URLs everywhere else.
func NewRecommendedStrategy(environment string, cdnURL string, apiURL string) URLStrategy {
	if environment == "production" && cdnURL != "" {
		return NewCDNStrategy(cdnURL)
	}
	if apiURL == "" {
		apiURL = DefaultAPIBaseURL
	}
	return NewContentBasedStrategy(apiURL)
}
