package nullifierset_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldfold/shieldnode/chain/chainmem"
	"github.com/shieldfold/shieldnode/engine/reorg"
	"github.com/shieldfold/shieldnode/indexer/nullifierset"
	model "github.com/shieldfold/shieldnode/model/chain"
)

func headerWithDigest(seq uint64, self, prev, digest byte) *model.Header {
	payload := make([]byte, 32)
	payload[0] = digest
	h := &model.Header{Sequence: seq, Timestamp: time.Unix(int64(seq), 0), Payload: payload}
	h.Hash[0] = self
	h.PreviousHash[0] = prev
	return h
}

func TestSet_TracksAddsAndRemoves(t *testing.T) {
	ctx := context.Background()
	genesis := headerWithDigest(0, 1, 0, 0xaa)
	store := chainmem.New(genesis)

	p, err := reorg.NewProcessor(ctx, zerolog.Nop(), store, store, nil, nil)
	require.NoError(t, err)

	set := nullifierset.New()
	set.Subscribe(p)

	_, err = p.Advance(ctx)
	require.NoError(t, err)

	genesisDigest := model.Identifier{0xaa}
	assert.True(t, set.Contains(genesisDigest))
	assert.Equal(t, 1, set.Len())

	a1 := headerWithDigest(1, 0xa1, 1, 0xbb)
	require.NoError(t, store.Extend(ctx, a1))
	require.NoError(t, store.SetHead(a1.Hash))

	_, err = p.Advance(ctx)
	require.NoError(t, err)
	assert.True(t, set.Contains(model.Identifier{0xbb}))
	assert.Equal(t, 2, set.Len())

	b1 := headerWithDigest(1, 0xb1, 1, 0xcc)
	require.NoError(t, store.Extend(ctx, b1))
	require.NoError(t, store.SetHead(b1.Hash))

	_, err = p.Advance(ctx)
	require.NoError(t, err)
	assert.False(t, set.Contains(model.Identifier{0xbb}), "a1's digest should be gone after the reorg removed it")
	assert.True(t, set.Contains(model.Identifier{0xcc}))
	assert.Equal(t, 2, set.Len())
}

func TestSet_IgnoresHeadersWithoutADigest(t *testing.T) {
	genesis := &model.Header{Sequence: 0, Timestamp: time.Unix(0, 0), Payload: []byte{1, 2, 3}}
	genesis.Hash[0] = 1

	set := nullifierset.New()
	require.NoError(t, set.OnAdd(context.Background(), genesis))
	assert.Equal(t, 0, set.Len())
}
