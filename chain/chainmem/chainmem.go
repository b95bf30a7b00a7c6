// Package chainmem is an in-memory chain.Store used by tests and by
// lightweight tooling that doesn't need durability.
package chainmem

import (
	"context"
	"fmt"
	"sync"

	"github.com/shieldfold/shieldnode/chain"
	"github.com/shieldfold/shieldnode/chain/forkfinder"
	model "github.com/shieldfold/shieldnode/model/chain"
	"github.com/shieldfold/shieldnode/verifier"
)

// Store is a concurrency-safe, in-memory chain.Store and chain.ForkFinder.
// The "current head" is whatever hash was most recently set with SetHead;
// tests use this to simulate the store's head jumping between branches.
type Store struct {
	mu        sync.RWMutex
	genesis   *model.Header
	headers   map[model.Identifier]*model.Header
	head      model.Identifier
	validator verifier.Validator

	chain.ForkFinder
}

// New creates a Store seeded with the given genesis header. genesis.PreviousHash
// must be the zero identifier.
func New(genesis *model.Header) *Store {
	s := &Store{
		genesis:   genesis,
		headers:   map[model.Identifier]*model.Header{genesis.Hash: genesis},
		head:      genesis.Hash,
		validator: verifier.AlwaysValid{},
	}
	s.ForkFinder = forkfinder.New(s)
	return s
}

// SetValidator installs v as the Store's header validator, checked by Extend.
// A Store returned by New validates with verifier.AlwaysValid.
func (s *Store) SetValidator(v verifier.Validator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validator = v
}

// Genesis implements chain.Store.
func (s *Store) Genesis() *model.Header {
	return s.genesis
}

// Head implements chain.Store.
func (s *Store) Head(ctx context.Context) (*model.Header, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.headers[s.head]
	if !ok {
		return nil, fmt.Errorf("chainmem: head %s missing from header set: %w", s.head, chain.ErrNotFound)
	}
	return h, nil
}

// ByID implements chain.Store.
func (s *Store) ByID(ctx context.Context, id model.Identifier) (*model.Header, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.headers[id]
	if !ok {
		return nil, chain.ErrNotFound
	}
	return h, nil
}

// Extend appends a new header to the store. header.PreviousHash must already
// be present and header must pass the Store's Validator. Extend does not
// change the current head; call SetHead to do that, mirroring a real store's
// proposal-then-finalization split.
func (s *Store) Extend(ctx context.Context, header *model.Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.headers[header.PreviousHash]; !ok {
		return fmt.Errorf("chainmem: parent %s not found for header %s", header.PreviousHash, header.Hash)
	}
	if err := s.validator.ValidateHeader(ctx, header); err != nil {
		return fmt.Errorf("chainmem: header %s rejected: %w", header.Hash, err)
	}
	s.headers[header.Hash] = header
	return nil
}

// SetHead moves the store's canonical tip to id, which must already be a
// known header. This is how tests simulate a reorg: extend a competing
// branch, then SetHead to its tip.
func (s *Store) SetHead(id model.Identifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.headers[id]; !ok {
		return fmt.Errorf("chainmem: cannot set head to unknown header %s", id)
	}
	s.head = id
	return nil
}

// IterateFrom implements chain.Store, walking backward along parent
// pointers.
func (s *Store) IterateFrom(ctx context.Context, start, stop model.Identifier, inclusive bool) (chain.HeaderIterator, error) {
	if _, err := s.ByID(ctx, start); err != nil {
		return nil, err
	}
	if _, err := s.ByID(ctx, stop); err != nil {
		return nil, err
	}
	return &backwardIterator{store: s, cursor: start, stop: stop, inclusive: inclusive}, nil
}

// IterateTo implements chain.Store, walking forward from start to stop
// along the branch that is canonical at the moment IterateTo is called.
func (s *Store) IterateTo(ctx context.Context, start, stop model.Identifier, inclusive bool) (chain.HeaderIterator, error) {
	if _, err := s.ByID(ctx, start); err != nil {
		return nil, err
	}
	stopHeader, err := s.ByID(ctx, stop)
	if err != nil {
		return nil, err
	}

	// Materialize the path start->stop by walking stop back to start; the
	// store snapshot is taken now, at call time, per the Store's contract
	// that iterators observe a single branch snapshot.
	s.mu.RLock()
	path := []*model.Header{stopHeader}
	cur := stopHeader
	for cur.Hash != start {
		if cur.IsGenesis() {
			s.mu.RUnlock()
			return nil, fmt.Errorf("chainmem: %s is not a descendant of %s", stop, start)
		}
		parent, ok := s.headers[cur.PreviousHash]
		if !ok {
			s.mu.RUnlock()
			return nil, fmt.Errorf("chainmem: missing header %s while walking to %s: %w", cur.PreviousHash, stop, chain.ErrNotFound)
		}
		cur = parent
		path = append(path, cur)
	}
	s.mu.RUnlock()

	// path is stop..start; reverse to start..stop.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	if !inclusive && len(path) > 0 {
		// stop is still yielded per the interface contract; inclusive only
		// affects how the caller should treat it, so we leave path as-is
		// and let the caller filter (see engine/reorg).
	}
	return &sliceIterator{headers: path}, nil
}

type backwardIterator struct {
	store     *Store
	cursor    model.Identifier
	stop      model.Identifier
	inclusive bool
	done      bool
}

func (it *backwardIterator) Next(ctx context.Context) (*model.Header, bool, error) {
	if it.done {
		return nil, false, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	h, err := it.store.ByID(ctx, it.cursor)
	if err != nil {
		return nil, false, err
	}
	if it.cursor == it.stop {
		it.done = true
		return h, true, nil
	}
	it.cursor = h.PreviousHash
	return h, true, nil
}

type sliceIterator struct {
	headers []*model.Header
	i       int
}

func (it *sliceIterator) Next(ctx context.Context) (*model.Header, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if it.i >= len(it.headers) {
		return nil, false, nil
	}
	h := it.headers[it.i]
	it.i++
	return h, true, nil
}

var _ chain.Store = (*Store)(nil)
