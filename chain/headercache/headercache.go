// Package headercache decorates a chain.Store with an LRU cache of recently
// looked-up headers, so a deep reorg's unwind phase (which walks ByID one
// parent at a time) doesn't force a disk read for every step.
package headercache

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/shieldfold/shieldnode/chain"
	model "github.com/shieldfold/shieldnode/model/chain"
)

// DefaultSize is used when New is called with size <= 0.
const DefaultSize = 4096

// Store wraps another chain.Store, caching ByID results. Head, Genesis, and
// the two iterators are passed straight through: Head must always be fresh,
// Genesis is already a constant, and iterators already stream lazily from
// the backing store.
//
// Store deliberately does not re-expose a backing chain.ForkFinder: doing so
// through an embedded interface field would promote FindFork even when the
// backing store doesn't implement it, panicking on a nil call instead of
// failing a type assertion. Callers that need FindFork should type-assert
// the backing store directly, before wrapping it here.
type Store struct {
	chain.Store
	cache  *lru.Cache
	single singleflight.Group
}

// New wraps backing with an LRU header cache holding up to size entries.
func New(backing chain.Store, size int) *Store {
	if size <= 0 {
		size = DefaultSize
	}
	cache, err := lru.New(size)
	if err != nil {
		// lru.New only fails for a non-positive size, which we've just
		// guarded against above.
		panic(err)
	}
	return &Store{Store: backing, cache: cache}
}

// ByID implements chain.Store, consulting the cache before falling through
// to the backing store. Concurrent misses for the same id are collapsed into
// a single backing lookup. Failed lookups (including ErrNotFound) are not
// cached.
func (s *Store) ByID(ctx context.Context, id model.Identifier) (*model.Header, error) {
	if cached, ok := s.cache.Get(id); ok {
		return cached.(*model.Header), nil
	}
	v, err, _ := s.single.Do(id.Hex(), func() (interface{}, error) {
		h, err := s.Store.ByID(ctx, id)
		if err != nil {
			return nil, err
		}
		s.cache.Add(id, h)
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Header), nil
}

var _ chain.Store = (*Store)(nil)
