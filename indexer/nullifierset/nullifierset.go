// Package nullifierset demonstrates the simplest possible downstream
// consumer of the reorg engine's event stream: an in-memory set of shielded
// commitment digests, kept in sync by subscribing directly to Add/Remove.
package nullifierset

import (
	"context"
	"sync"

	"github.com/shieldfold/shieldnode/engine/reorg"
	model "github.com/shieldfold/shieldnode/model/chain"
)

// Set tracks the shielded commitment digests carried by headers currently on
// the followed path from genesis to head. It exists to make the processor's
// add/remove balance observable from a consumer's point of view: Len never
// underflows because Remove only ever removes what a prior Add inserted.
type Set struct {
	mu      sync.RWMutex
	digests map[model.Identifier]struct{}
}

// New returns an empty Set.
func New() *Set {
	return &Set{digests: make(map[model.Identifier]struct{})}
}

// Subscribe wires the Set's OnAdd/OnRemove handlers into p directly. Use
// this when the Set is the only consumer; route through an EventBus instead
// when there are several.
func (s *Set) Subscribe(p *reorg.Processor) {
	p.OnAdd(s.OnAdd)
	p.OnRemove(s.OnRemove)
}

// OnAdd is a reorg.Handler that inserts header's commitment digest, if it
// has one.
func (s *Set) OnAdd(_ context.Context, header *model.Header) error {
	digest, ok := model.CommitmentDigest(header)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digests[digest] = struct{}{}
	return nil
}

// OnRemove is a reorg.Handler that deletes header's commitment digest, if it
// has one. Deleting an absent key is a no-op, matching a header being
// re-removed after a nested reorg without ever having been re-added.
func (s *Set) OnRemove(_ context.Context, header *model.Header) error {
	digest, ok := model.CommitmentDigest(header)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.digests, digest)
	return nil
}

// Contains reports whether digest is currently tracked.
func (s *Set) Contains(digest model.Identifier) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.digests[digest]
	return ok
}

// Len returns the number of digests currently tracked.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.digests)
}
