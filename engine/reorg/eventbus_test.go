package reorg_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldfold/shieldnode/chain/chainmem"
	"github.com/shieldfold/shieldnode/engine/reorg"
	model "github.com/shieldfold/shieldnode/model/chain"
)

func TestEventBus_FanOutInSubscribeOrder(t *testing.T) {
	ctx := context.Background()
	genesis := &model.Header{Sequence: 0, Timestamp: time.Unix(0, 0)}
	genesis.Hash[0] = 1
	store := chainmem.New(genesis)

	p, err := reorg.NewProcessor(ctx, zerolog.Nop(), store, store, nil, nil)
	require.NoError(t, err)

	bus := reorg.NewEventBus()
	var order []string
	bus.Subscribe("first", func(context.Context, *model.Header) error {
		order = append(order, "first")
		return nil
	}, nil)
	bus.Subscribe("second", func(context.Context, *model.Header) error {
		order = append(order, "second")
		return nil
	}, nil)
	bus.Attach(p)

	_, err = p.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestEventBus_FailingSubscriberWrapsHandlerError(t *testing.T) {
	ctx := context.Background()
	genesis := &model.Header{Sequence: 0, Timestamp: time.Unix(0, 0)}
	genesis.Hash[0] = 1
	store := chainmem.New(genesis)

	p, err := reorg.NewProcessor(ctx, zerolog.Nop(), store, store, nil, nil)
	require.NoError(t, err)

	boom := errors.New("boom")
	bus := reorg.NewEventBus()
	var secondRan bool
	bus.Subscribe("bad", func(context.Context, *model.Header) error { return boom }, nil)
	bus.Subscribe("good", func(context.Context, *model.Header) error { secondRan = true; return nil }, nil)
	bus.Attach(p)

	_, err = p.Advance(ctx)
	require.Error(t, err)
	assert.False(t, secondRan)

	var handlerErr *reorg.HandlerError
	require.ErrorAs(t, err, &handlerErr)
	assert.ErrorIs(t, err, boom)
}
