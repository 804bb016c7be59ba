// Package snapshot keeps a room's message list and scroll offset between
// visits so a returning viewer sees the room before the network answers.
package snapshot

import (
	"context"
	"slices"
	"time"

	"github.com/npezzotti/topichat/internal/types"
	gocache "github.com/patrickmn/go-cache"
)

const DefaultTTL = 24 * time.Hour

type Snapshot struct {
	Messages  []types.Message `json:"messages"`
	ScrollTop int             `json:"scroll_top"`
	HasMore   bool            `json:"has_more"`
	SavedAt   time.Time       `json:"saved_at"`
}

// Cache stores at most one snapshot per room. Load reports false when
// nothing is stored.
type Cache interface {
	Save(ctx context.Context, roomId string, s Snapshot) error
	Load(ctx context.Context, roomId string) (Snapshot, bool, error)
	Discard(ctx context.Context, roomId string) error
}

func key(roomId string) string {
	return "topichat:snapshot:" + roomId
}

// MemoryCache keeps snapshots in process memory.
type MemoryCache struct {
	c *gocache.Cache
}

var _ Cache = (*MemoryCache)(nil)

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{c: gocache.New(ttl, 2*ttl)}
}

func (m *MemoryCache) Save(_ context.Context, roomId string, s Snapshot) error {
	s.Messages = slices.Clone(s.Messages)
	m.c.SetDefault(key(roomId), s)
	return nil
}

func (m *MemoryCache) Load(_ context.Context, roomId string) (Snapshot, bool, error) {
	v, ok := m.c.Get(key(roomId))
	if !ok {
		return Snapshot{}, false, nil
	}
	s := v.(Snapshot)
	s.Messages = slices.Clone(s.Messages)
	return s, true, nil
}

func (m *MemoryCache) Discard(_ context.Context, roomId string) error {
	m.c.Delete(key(roomId))
	return nil
}
