package semantic

import "context"

// DefaultLimit is used when a caller passes a non-positive limit.
const DefaultLimit = 3

// Hit represents a single vector search hit. Only numeric point IDs are
// supported since hits are joined against integer primary keys.
type Hit struct {
	ID      int64   `json:"id"`
	Score   float64 `json:"score"`
	Version *int64  `json:"version,omitempty"`
}

// SearchResponse mirrors Qdrant's REST search body.
type SearchResponse struct {
	Result []Hit    `json:"result"`
	Status string   `json:"status"`
	Time   *float64 `json:"time,omitempty"`
}

// Searcher runs a k-NN search against a fixed collection. Hits are returned in
// the order the backend ranked them.
type Searcher interface {
	Search(ctx context.Context, vector []float64, limit int) ([]Hit, error)
	CollectionExists(ctx context.Context) (bool, error)
}

func effectiveLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
