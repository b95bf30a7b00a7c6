package chainmem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldfold/shieldnode/chain"
	"github.com/shieldfold/shieldnode/chain/chainmem"
	model "github.com/shieldfold/shieldnode/model/chain"
)

func header(seq uint64, self, prev byte) *model.Header {
	h := &model.Header{Sequence: seq, Timestamp: time.Unix(int64(seq), 0)}
	h.Hash[0] = self
	h.PreviousHash[0] = prev
	return h
}

func TestStore_GenesisAndHead(t *testing.T) {
	genesis := header(0, 1, 0)
	s := chainmem.New(genesis)

	assert.Equal(t, genesis, s.Genesis())

	head, err := s.Head(context.Background())
	require.NoError(t, err)
	assert.Equal(t, genesis, head)
}

func TestStore_ExtendAndSetHead(t *testing.T) {
	ctx := context.Background()
	genesis := header(0, 1, 0)
	s := chainmem.New(genesis)

	b1 := header(1, 2, 1)
	require.NoError(t, s.Extend(ctx, b1))
	require.NoError(t, s.SetHead(b1.Hash))

	head, err := s.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, b1, head)
}

func TestStore_ExtendUnknownParent(t *testing.T) {
	ctx := context.Background()
	s := chainmem.New(header(0, 1, 0))

	orphan := header(5, 9, 8)
	err := s.Extend(ctx, orphan)
	assert.Error(t, err)
}

func TestStore_ExtendRejectedByValidator(t *testing.T) {
	ctx := context.Background()
	s := chainmem.New(header(0, 1, 0))
	s.SetValidator(rejectAll{})

	err := s.Extend(ctx, header(1, 2, 1))
	assert.Error(t, err)
}

type rejectAll struct{}

func (rejectAll) ValidateHeader(context.Context, *model.Header) error {
	return assert.AnError
}

func TestStore_ByID_NotFound(t *testing.T) {
	s := chainmem.New(header(0, 1, 0))
	_, err := s.ByID(context.Background(), model.Identifier{99})
	assert.ErrorIs(t, err, chain.ErrNotFound)
}

func TestStore_IterateFrom_WalksBackward(t *testing.T) {
	ctx := context.Background()
	genesis := header(0, 1, 0)
	s := chainmem.New(genesis)
	b1 := header(1, 2, 1)
	b2 := header(2, 3, 2)
	require.NoError(t, s.Extend(ctx, b1))
	require.NoError(t, s.Extend(ctx, b2))

	iter, err := s.IterateFrom(ctx, b2.Hash, genesis.Hash, false)
	require.NoError(t, err)

	var got []*model.Header
	for {
		h, ok, err := iter.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, h)
	}
	require.Len(t, got, 3)
	assert.Equal(t, b2, got[0])
	assert.Equal(t, b1, got[1])
	assert.Equal(t, genesis, got[2])
}

func TestStore_IterateTo_WalksForward(t *testing.T) {
	ctx := context.Background()
	genesis := header(0, 1, 0)
	s := chainmem.New(genesis)
	b1 := header(1, 2, 1)
	b2 := header(2, 3, 2)
	require.NoError(t, s.Extend(ctx, b1))
	require.NoError(t, s.Extend(ctx, b2))

	iter, err := s.IterateTo(ctx, genesis.Hash, b2.Hash, true)
	require.NoError(t, err)

	var got []*model.Header
	for {
		h, ok, err := iter.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, h)
	}
	require.Len(t, got, 3)
	assert.Equal(t, genesis, got[0])
	assert.Equal(t, b1, got[1])
	assert.Equal(t, b2, got[2])
}

func TestStore_CancelledContext(t *testing.T) {
	s := chainmem.New(header(0, 1, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Head(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
