package reorg_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldfold/shieldnode/chain/chainmem"
	"github.com/shieldfold/shieldnode/engine/reorg"
	"github.com/shieldfold/shieldnode/internal/component"
	model "github.com/shieldfold/shieldnode/model/chain"
)

func TestDriver_PollsUntilCancelled(t *testing.T) {
	ctx := context.Background()
	genesis := &model.Header{Sequence: 0, Timestamp: time.Unix(0, 0)}
	genesis.Hash[0] = 1
	store := chainmem.New(genesis)

	p, err := reorg.NewProcessor(ctx, zerolog.Nop(), store, store, nil, nil)
	require.NoError(t, err)

	var addCount int
	p.OnAdd(func(context.Context, *model.Header) error { addCount++; return nil })

	cfg := reorg.DefaultDriverConfig()
	cfg.PollInterval = time.Millisecond
	d := reorg.NewDriver(zerolog.Nop(), p, cfg)

	runCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	signaler, errChan := component.NewRootSignalerContext(runCtx)
	d.Start(signaler)

	select {
	case <-d.Ready():
	case <-time.After(time.Second):
		t.Fatal("driver never became ready")
	}

	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("driver never shut down after context cancellation")
	}

	select {
	case err := <-errChan:
		t.Fatalf("driver threw an unexpected error: %v", err)
	default:
	}

	assert.GreaterOrEqual(t, addCount, 1, "genesis should have been observed at least once")
}

func TestDriver_ThrowsOnAdvanceFailure(t *testing.T) {
	ctx := context.Background()
	genesis := &model.Header{Sequence: 0, Timestamp: time.Unix(0, 0)}
	genesis.Hash[0] = 1
	store := chainmem.New(genesis)

	boom := errors.New("boom")
	p, err := reorg.NewProcessor(ctx, zerolog.Nop(), store, store, nil, nil)
	require.NoError(t, err)
	p.OnAdd(func(context.Context, *model.Header) error { return boom })

	cfg := reorg.DefaultDriverConfig()
	cfg.PollInterval = time.Millisecond
	d := reorg.NewDriver(zerolog.Nop(), p, cfg)

	signaler, errChan := component.NewRootSignalerContext(ctx)
	d.Start(signaler)

	select {
	case err := <-errChan:
		var handlerErr *reorg.HandlerError
		assert.ErrorAs(t, err, &handlerErr)
	case <-time.After(time.Second):
		t.Fatal("driver never threw the handler failure")
	}

	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("driver never shut down after throwing")
	}
}

func TestDriver_LogsPeriodicDepthSummary(t *testing.T) {
	ctx := context.Background()
	genesis := &model.Header{Sequence: 0, Timestamp: time.Unix(0, 0)}
	genesis.Hash[0] = 1
	store := chainmem.New(genesis)

	metrics := reorg.NewPromMetrics(prometheus.NewRegistry(), "test")
	metrics.ReorgObserved(3)

	p, err := reorg.NewProcessor(ctx, zerolog.Nop(), store, store, metrics, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	log := zerolog.New(&buf)

	cfg := reorg.DefaultDriverConfig()
	cfg.PollInterval = time.Hour
	cfg.SummaryLogInterval = time.Millisecond
	d := reorg.NewDriver(log, p, cfg)

	runCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	signaler, _ := component.NewRootSignalerContext(runCtx)
	d.Start(signaler)

	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("driver never shut down after context cancellation")
	}

	assert.Contains(t, buf.String(), "reorg depth summary")
}
