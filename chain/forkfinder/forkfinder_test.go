package forkfinder_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldfold/shieldnode/chain"
	"github.com/shieldfold/shieldnode/chain/chainmem"
	"github.com/shieldfold/shieldnode/chain/forkfinder"
	model "github.com/shieldfold/shieldnode/model/chain"
)

func header(seq uint64, self, prev byte) *model.Header {
	h := &model.Header{Sequence: seq, Timestamp: time.Unix(int64(seq), 0)}
	h.Hash[0] = self
	h.PreviousHash[0] = prev
	return h
}

func TestFindFork_Linear(t *testing.T) {
	ctx := context.Background()
	genesis := header(0, 1, 0)
	s := chainmem.New(genesis)
	b1 := header(1, 2, 1)
	require.NoError(t, s.Extend(ctx, b1))

	f := forkfinder.New(s)
	fork, isLinear, err := f.FindFork(ctx, genesis.Hash, b1.Hash)
	require.NoError(t, err)
	assert.True(t, isLinear)
	assert.Equal(t, genesis.Hash, fork.Hash)
}

func TestFindFork_Reorg(t *testing.T) {
	ctx := context.Background()
	genesis := header(0, 1, 0)
	s := chainmem.New(genesis)

	a1 := header(1, 0xa1, 1)
	a2 := header(2, 0xa2, 0xa1)
	require.NoError(t, s.Extend(ctx, a1))
	require.NoError(t, s.Extend(ctx, a2))

	b1 := header(1, 0xb1, 1)
	require.NoError(t, s.Extend(ctx, b1))

	f := forkfinder.New(s)
	fork, isLinear, err := f.FindFork(ctx, a2.Hash, b1.Hash)
	require.NoError(t, err)
	assert.False(t, isLinear)
	assert.Equal(t, genesis.Hash, fork.Hash)
}

// disjointStore holds two entirely separate header trees, each rooted at its
// own genesis, to exercise the case chainmem's connectivity-checked Extend
// can't produce: two branches with no common ancestor at all.
type disjointStore struct {
	headers map[model.Identifier]*model.Header
}

func newDisjointStore(roots ...*model.Header) *disjointStore {
	s := &disjointStore{headers: make(map[model.Identifier]*model.Header)}
	for _, h := range roots {
		s.headers[h.Hash] = h
	}
	return s
}

func (s *disjointStore) Genesis() *model.Header { panic("unused") }
func (s *disjointStore) Head(context.Context) (*model.Header, error) { panic("unused") }
func (s *disjointStore) ByID(_ context.Context, id model.Identifier) (*model.Header, error) {
	h, ok := s.headers[id]
	if !ok {
		return nil, chain.ErrNotFound
	}
	return h, nil
}
func (s *disjointStore) IterateFrom(context.Context, model.Identifier, model.Identifier, bool) (chain.HeaderIterator, error) {
	panic("unused")
}
func (s *disjointStore) IterateTo(context.Context, model.Identifier, model.Identifier, bool) (chain.HeaderIterator, error) {
	panic("unused")
}

func TestFindFork_Disjoint(t *testing.T) {
	ctx := context.Background()
	genesisA := header(0, 1, 0)
	genesisB := header(0, 2, 0)
	s := newDisjointStore(genesisA, genesisB)

	f := forkfinder.New(s)
	fork, isLinear, err := f.FindFork(ctx, genesisA.Hash, genesisB.Hash)
	require.NoError(t, err)
	assert.False(t, isLinear)
	assert.Nil(t, fork)
}

func TestFindFork_SameHeader(t *testing.T) {
	ctx := context.Background()
	genesis := header(0, 1, 0)
	s := chainmem.New(genesis)

	f := forkfinder.New(s)
	fork, isLinear, err := f.FindFork(ctx, genesis.Hash, genesis.Hash)
	require.NoError(t, err)
	assert.True(t, isLinear)
	assert.Equal(t, genesis.Hash, fork.Hash)
}
