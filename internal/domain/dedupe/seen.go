package dedupe

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultSeenTTL outlives any calendar day, so a replayed record id is
// caught at least until its day is over.
const DefaultSeenTTL = 48 * time.Hour

// Seen records ids to make ingestion idempotent.
type Seen interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a failed ingestion can be retried.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemorySeen keeps ids until they expire.
type inMemorySeen struct {
	ttl   time.Duration
	items *cache.Cache
}

// NewInMemorySeen creates an in-memory Seen set.
func NewInMemorySeen(opts ...Option) Seen {
	s := &inMemorySeen{ttl: DefaultSeenTTL}
	for _, opt := range opts {
		opt(s)
	}
	s.items = cache.New(s.ttl, cleanupInterval(s.ttl))
	return s
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl / 4
}

func (s *inMemorySeen) SeenAndRecord(_ context.Context, id string) bool {
	// Add fails when a live entry exists; that is the atomic check.
	return s.items.Add(id, struct{}{}, cache.DefaultExpiration) != nil
}

func (s *inMemorySeen) Unrecord(_ context.Context, id string) {
	s.items.Delete(id)
}

func (s *inMemorySeen) Size() int64 {
	return int64(s.items.ItemCount())
}
