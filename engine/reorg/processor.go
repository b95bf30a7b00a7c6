// Package reorg implements the chain-following reorganization engine: it
// diffs a Processor's cursor against a chain.Store's current head and emits
// a causally correct stream of Remove-then-Add events, tolerating
// concurrent mutation of the store and cooperative cancellation.
package reorg

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/shieldfold/shieldnode/chain"
	model "github.com/shieldfold/shieldnode/model/chain"
)

// Result is returned by Advance.
type Result struct {
	// CursorChanged reports whether the cursor moved relative to its value
	// when Advance was called.
	CursorChanged bool
}

// Processor maintains a cursor over a chain.Store and, on each call to
// Advance, emits the Remove/Add events needed to bring subscribers from the
// old cursor position to the store's current head. Advance is not
// reentrant: callers must serialize their own calls, e.g. with an outer
// mutex.
type Processor struct {
	log     zerolog.Logger
	store   chain.Store
	forks   chain.ForkFinder
	metrics Metrics

	cursor   Cursor
	onAdd    *subscription
	onRemove *subscription
}

// NewProcessor constructs a Processor over store, using forks to locate
// common ancestors. If headHash is non-nil, the Processor trusts that the
// caller has already observed every header from genesis up to and
// including that hash, and seeds its cursor there instead of starting
// Unseeded — no bootstrap Add events are emitted for headers below it.
//
// metrics may be nil, in which case observations are discarded.
func NewProcessor(ctx context.Context, log zerolog.Logger, store chain.Store, forks chain.ForkFinder, metrics Metrics, headHash *model.Identifier) (*Processor, error) {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	p := &Processor{
		log:      log.With().Str("engine", "reorg_processor").Logger(),
		store:    store,
		forks:    forks,
		metrics:  metrics,
		onAdd:    newSubscription(Add),
		onRemove: newSubscription(Remove),
	}
	if headHash != nil {
		seedHeader, err := store.ByID(ctx, *headHash)
		if err != nil {
			return nil, fmt.Errorf("reorg: could not load seed header %s: %w", *headHash, err)
		}
		p.cursor = seedAt(seedHeader.Hash, seedHeader.Sequence)
	}
	return p, nil
}

// OnAdd registers h to run, in registration order, whenever the Processor
// emits an Add event.
func (p *Processor) OnAdd(h Handler) {
	p.onAdd.Subscribe(h)
}

// OnRemove registers h to run, in registration order, whenever the
// Processor emits a Remove event.
func (p *Processor) OnRemove(h Handler) {
	p.onRemove.Subscribe(h)
}

// Metrics returns the Processor's Metrics implementation, so a caller such
// as Driver can type-assert for extra reporting (e.g. *PromMetrics's
// ReorgDepthSummary) without the Processor itself depending on Prometheus.
func (p *Processor) Metrics() Metrics {
	return p.metrics
}

// Cursor returns the Processor's current cursor.
func (p *Processor) Cursor() Cursor {
	return p.cursor
}

// logInconsistent logs err at Error before returning it, for the fatal
// ErrStoreInconsistent conditions Advance and its helpers detect.
func (p *Processor) logInconsistent(err error) error {
	p.log.Error().Err(err).Msg("store is inconsistent with processor cursor")
	return err
}

// Advance performs one reconciliation pass against the store's current
// head. It returns whether the cursor moved. It returns an error for
// ErrStoreInconsistent, a HandlerError, or a store call that fails for a
// reason other than cancellation; a disjoint fork or a cancelled context are
// not errors — both are reported through Result and, for the former, a log
// line.
func (p *Processor) Advance(ctx context.Context) (Result, error) {
	oldCursor := p.cursor

	if p.cursor.Unseeded() {
		if ctx.Err() != nil {
			return Result{CursorChanged: false}, nil
		}
		genesis := p.store.Genesis()
		if err := p.emit(ctx, p.onAdd, genesis); err != nil {
			return Result{CursorChanged: false}, err
		}
		p.cursor = seedAt(genesis.Hash, genesis.Sequence)
		p.log.Info().
			Stringer("hash", genesis.Hash).
			Uint64("sequence", genesis.Sequence).
			Msg("seeded cursor at genesis")
	}

	target, err := p.store.Head(ctx)
	if err != nil {
		if isCancellation(err) {
			return Result{CursorChanged: p.cursorChangedSince(oldCursor)}, nil
		}
		return Result{CursorChanged: p.cursorChangedSince(oldCursor)}, fmt.Errorf("reorg: could not sample head: %w", err)
	}

	cursorHash, _ := p.cursor.Hash()
	if target.Hash == cursorHash {
		return Result{CursorChanged: p.cursorChangedSince(oldCursor)}, nil
	}

	current, err := p.store.ByID(ctx, cursorHash)
	if err != nil {
		if isCancellation(err) {
			return Result{CursorChanged: p.cursorChangedSince(oldCursor)}, nil
		}
		if errors.Is(err, chain.ErrNotFound) {
			return Result{CursorChanged: p.cursorChangedSince(oldCursor)}, p.logInconsistent(storeInconsistentf("cursor header %s is no longer present in the store", cursorHash))
		}
		return Result{CursorChanged: p.cursorChangedSince(oldCursor)}, fmt.Errorf("reorg: could not load cursor header: %w", err)
	}

	fork, isLinear, err := p.forks.FindFork(ctx, current.Hash, target.Hash)
	if err != nil {
		if isCancellation(err) {
			return Result{CursorChanged: p.cursorChangedSince(oldCursor)}, nil
		}
		return Result{CursorChanged: p.cursorChangedSince(oldCursor)}, fmt.Errorf("reorg: could not find fork: %w", err)
	}
	if fork == nil {
		p.log.Warn().
			Stringer("cursor", current.Hash).
			Stringer("head", target.Hash).
			Msg("cursor and head belong to disjoint trees, no progress possible")
		return Result{CursorChanged: p.cursorChangedSince(oldCursor)}, nil
	}

	if !isLinear {
		p.log.Info().
			Stringer("fork", fork.Hash).
			Stringer("current", current.Hash).
			Stringer("target", target.Hash).
			Msg("reorganization detected, unwinding to fork")
		depth, err := p.unwind(ctx, current, fork)
		if err != nil {
			return Result{CursorChanged: p.cursorChangedSince(oldCursor)}, err
		}
		p.metrics.ReorgObserved(depth)
		if depth > 0 {
			p.log.Info().
				Stringer("fork", fork.Hash).
				Int("depth", depth).
				Msg("reorganization unwind complete")
		}
		if ctx.Err() != nil {
			return Result{CursorChanged: p.cursorChangedSince(oldCursor)}, nil
		}
	}

	if err := p.rewind(ctx, fork, target); err != nil {
		return Result{CursorChanged: p.cursorChangedSince(oldCursor)}, err
	}

	return Result{CursorChanged: p.cursorChangedSince(oldCursor)}, nil
}

// unwind emits Remove events walking backward from current to fork
// (exclusive of fork), updating the cursor to the parent of each removed
// header as it goes. It returns the number of headers removed.
func (p *Processor) unwind(ctx context.Context, current, fork *model.Header) (int, error) {
	iter, err := p.store.IterateFrom(ctx, current.Hash, fork.Hash, false)
	if err != nil {
		if isCancellation(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reorg: could not iterate from %s to %s: %w", current.Hash, fork.Hash, err)
	}

	depth := 0
	expected := current.Hash
	for {
		h, ok, err := iter.Next(ctx)
		if err != nil {
			if isCancellation(err) {
				return depth, nil
			}
			return depth, fmt.Errorf("reorg: unwind iteration failed: %w", err)
		}
		if !ok {
			return depth, nil
		}
		if h.Hash != expected {
			return depth, p.logInconsistent(unexpectedHash(h, expected))
		}
		expected = h.PreviousHash

		if h.Hash == fork.Hash {
			continue
		}
		if ctx.Err() != nil {
			return depth, nil
		}

		if err := p.emit(ctx, p.onRemove, h); err != nil {
			return depth, err
		}
		p.cursor = seedAt(h.PreviousHash, h.Sequence-1)
		depth++
	}
}

// rewind emits Add events walking forward from fork (exclusive) to target
// (inclusive), updating the cursor to each added header as it goes.
func (p *Processor) rewind(ctx context.Context, fork, target *model.Header) error {
	iter, err := p.store.IterateTo(ctx, fork.Hash, target.Hash, false)
	if err != nil {
		if isCancellation(err) {
			return nil
		}
		return fmt.Errorf("reorg: could not iterate from %s to %s: %w", fork.Hash, target.Hash, err)
	}

	expected := fork.Hash
	first := true
	for {
		h, ok, err := iter.Next(ctx)
		if err != nil {
			if isCancellation(err) {
				return nil
			}
			return fmt.Errorf("reorg: rewind iteration failed: %w", err)
		}
		if !ok {
			return nil
		}
		if first {
			if h.Hash != fork.Hash {
				return p.logInconsistent(unexpectedHash(h, expected))
			}
			first = false
			continue
		}
		if h.PreviousHash != expected {
			return p.logInconsistent(unexpectedParent(h, expected))
		}
		expected = h.Hash

		if ctx.Err() != nil {
			return nil
		}

		if err := p.emit(ctx, p.onAdd, h); err != nil {
			return err
		}
		p.cursor = seedAt(h.Hash, h.Sequence)
	}
}

func (p *Processor) emit(ctx context.Context, sub *subscription, header *model.Header) error {
	if err := sub.emit(ctx, header); err != nil {
		return err
	}
	p.metrics.EventEmitted(sub.kind)
	p.metrics.CursorAdvanced(header.Sequence)
	return nil
}

// isCancellation reports whether err is exactly a context cancellation
// signal rather than a genuine store failure, so Advance can treat it as a
// graceful, retryable condition instead of surfacing it as an error.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (p *Processor) cursorChangedSince(old Cursor) bool {
	oldHash, oldOK := old.Hash()
	newHash, newOK := p.cursor.Hash()
	if oldOK != newOK {
		return true
	}
	return oldHash != newHash
}
