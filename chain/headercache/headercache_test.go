package headercache_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldfold/shieldnode/chain"
	"github.com/shieldfold/shieldnode/chain/chainmem"
	"github.com/shieldfold/shieldnode/chain/headercache"
	model "github.com/shieldfold/shieldnode/model/chain"
)

func header(seq uint64, self, prev byte) *model.Header {
	h := &model.Header{Sequence: seq, Timestamp: time.Unix(int64(seq), 0)}
	h.Hash[0] = self
	h.PreviousHash[0] = prev
	return h
}

// countingStore counts every ByID call it actually serves, so tests can
// assert the cache is shielding it from repeated lookups.
type countingStore struct {
	*chainmem.Store
	calls int32
}

func (s *countingStore) ByID(ctx context.Context, id model.Identifier) (*model.Header, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.Store.ByID(ctx, id)
}

func TestStore_CachesByID(t *testing.T) {
	ctx := context.Background()
	genesis := header(0, 1, 0)
	backing := &countingStore{Store: chainmem.New(genesis)}
	s := headercache.New(backing, 16)

	h1, err := s.ByID(ctx, genesis.Hash)
	require.NoError(t, err)
	assert.Equal(t, genesis, h1)

	h2, err := s.ByID(ctx, genesis.Hash)
	require.NoError(t, err)
	assert.Equal(t, genesis, h2)

	assert.EqualValues(t, 1, atomic.LoadInt32(&backing.calls), "second lookup should be served from cache")
}

func TestStore_ByID_NotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{Store: chainmem.New(header(0, 1, 0))}
	s := headercache.New(backing, 16)

	_, err := s.ByID(ctx, model.Identifier{99})
	assert.ErrorIs(t, err, chain.ErrNotFound)

	_, err = s.ByID(ctx, model.Identifier{99})
	assert.ErrorIs(t, err, chain.ErrNotFound)
	assert.EqualValues(t, 2, atomic.LoadInt32(&backing.calls), "a miss is not cached, so the second lookup reaches the backing store again")
}

func TestStore_PassesThroughHeadAndGenesis(t *testing.T) {
	ctx := context.Background()
	genesis := header(0, 1, 0)
	backing := chainmem.New(genesis)
	s := headercache.New(backing, 16)

	assert.Equal(t, genesis, s.Genesis())

	head, err := s.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, genesis, head)
}

// blockingStore blocks the first ByID call until release is closed, so the
// test can force two concurrent lookups for the same id to race.
type blockingStore struct {
	*chainmem.Store
	calls   int32
	release chan struct{}
}

func (s *blockingStore) ByID(ctx context.Context, id model.Identifier) (*model.Header, error) {
	if atomic.AddInt32(&s.calls, 1) == 1 {
		<-s.release
	}
	return s.Store.ByID(ctx, id)
}

func TestStore_CollapsesConcurrentMissesForSameID(t *testing.T) {
	ctx := context.Background()
	genesis := header(0, 1, 0)
	backing := &blockingStore{Store: chainmem.New(genesis), release: make(chan struct{})}
	s := headercache.New(backing, 16)

	var wg sync.WaitGroup
	results := make([]*model.Header, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.ByID(ctx, genesis.Hash)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(backing.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, genesis, results[0])
	assert.Equal(t, genesis, results[1])
	assert.EqualValues(t, 1, atomic.LoadInt32(&backing.calls), "concurrent misses for the same id should collapse into one backing call")
}
