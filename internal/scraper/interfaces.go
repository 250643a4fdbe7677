package scraper

import (
	"context"
	"time"
)

// Fetcher performs a single retrieval attempt for one URL.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Throttle spaces request issuance across all workers.
type Throttle interface {
	Wait(ctx context.Context) error
}

// BackoffPolicy maps a 1-indexed attempt number to a wait duration.
type BackoffPolicy interface {
	Delay(attempt int) time.Duration
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for filenames and deduplication.
type Hasher interface {
	Hash(data []byte) string
}
