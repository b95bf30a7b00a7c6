// Package forkfinder implements chain.ForkFinder generically against any
// chain.Store, by walking parent pointers.
//
// The algorithm is grounded on two independent solutions to the same
// problem found in production indexers: rubin-protocol's
// findForkPoint/pathFromAncestor pair (align by height, then walk both
// chains up together) and etherflow's InMemoryChainMonitor.ResolveReorg
// (backtrack the new head until a known ancestor is found). Both reduce to
// "walk up from the deeper header to equal height, then walk both up
// together until the hashes match", which is what FindFork below does.
package forkfinder

import (
	"context"
	"fmt"

	"github.com/shieldfold/shieldnode/chain"
	model "github.com/shieldfold/shieldnode/model/chain"
)

type finder struct {
	store chain.Store
}

// New returns a chain.ForkFinder that answers FindFork by walking parent
// pointers through store. It works against any Store implementation but
// costs O(depth) ByID calls. None of the stores in this module keeps an
// index that would answer faster, so all of them use this walk.
func New(store chain.Store) chain.ForkFinder {
	return &finder{store: store}
}

func (f *finder) FindFork(ctx context.Context, a, b model.Identifier) (*model.Header, bool, error) {
	ha, err := f.store.ByID(ctx, a)
	if err != nil {
		return nil, false, fmt.Errorf("could not load header %s: %w", a, err)
	}
	hb, err := f.store.ByID(ctx, b)
	if err != nil {
		return nil, false, fmt.Errorf("could not load header %s: %w", b, err)
	}

	startA, startB := ha.Hash, hb.Hash

	// Walk the deeper header up until both are at the same sequence.
	for ha.Sequence > hb.Sequence {
		ha, err = f.store.ByID(ctx, ha.PreviousHash)
		if err != nil {
			return nil, false, fmt.Errorf("could not walk up from %s: %w", a, err)
		}
	}
	for hb.Sequence > ha.Sequence {
		hb, err = f.store.ByID(ctx, hb.PreviousHash)
		if err != nil {
			return nil, false, fmt.Errorf("could not walk up from %s: %w", b, err)
		}
	}

	// Walk both up together until they meet, or until both hit genesis
	// without meeting (disjoint trees).
	for ha.Hash != hb.Hash {
		if ha.IsGenesis() && hb.IsGenesis() {
			return nil, false, nil
		}
		ha, err = f.store.ByID(ctx, ha.PreviousHash)
		if err != nil {
			return nil, false, fmt.Errorf("could not walk up from %s: %w", a, err)
		}
		hb, err = f.store.ByID(ctx, hb.PreviousHash)
		if err != nil {
			return nil, false, fmt.Errorf("could not walk up from %s: %w", b, err)
		}
	}

	isLinear := ha.Hash == startA || ha.Hash == startB
	return ha, isLinear, nil
}
