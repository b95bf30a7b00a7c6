package chain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	model "github.com/shieldfold/shieldnode/model/chain"
)

func TestHeader_IsGenesis(t *testing.T) {
	genesis := &model.Header{Hash: model.Identifier{1}, PreviousHash: model.ZeroIdentifier}
	assert.True(t, genesis.IsGenesis())

	child := &model.Header{Hash: model.Identifier{2}, PreviousHash: model.Identifier{1}}
	assert.False(t, child.IsGenesis())
}

func TestHeader_ID(t *testing.T) {
	h := &model.Header{Hash: model.Identifier{9}, Timestamp: time.Unix(0, 0)}
	assert.Equal(t, h.Hash, h.ID())
}

func TestCommitmentDigest(t *testing.T) {
	var want model.Identifier
	want[0] = 0xaa

	h := &model.Header{Payload: append(append([]byte{}, want[:]...), []byte("extra")...)}
	got, ok := model.CommitmentDigest(h)
	assert.True(t, ok)
	assert.Equal(t, want, got)

	short := &model.Header{Payload: []byte{1, 2, 3}}
	_, ok = model.CommitmentDigest(short)
	assert.False(t, ok)
}
