package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// Result is a single retrieved chunk with its similarity score.
type Result struct {
	ChunkID    uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	PageNumber int
	Content    string
	Similarity float64 // cosine similarity in [0, 1]
}

// SearchOption configures search behavior using the functional options
// pattern, as in context.WithTimeout or grpc.Dial.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK       int
	threshold  float64
	documentID uuid.UUID
	timeout    time.Duration
}

// WithTopK sets the maximum number of results to return. Default is 5.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		c.topK = k
	}
}

// WithThreshold sets the minimum cosine similarity for a result to be
// included. Default is 0, meaning no filtering.
func WithThreshold(t float64) SearchOption {
	return func(c *searchConfig) {
		c.threshold = t
	}
}

// WithDocument restricts search to chunks of a single document.
// By default all documents are searched.
func WithDocument(id uuid.UUID) SearchOption {
	return func(c *searchConfig) {
		c.documentID = id
	}
}

// WithTimeout bounds the total search time, embedding included.
// Default is 10 seconds.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		c.timeout = d
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    5,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
