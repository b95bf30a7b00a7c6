// Package chain defines the interfaces the reorg engine requires from a
// canonical block store: genesis/head access, lookup by hash, and lazy
// directional iteration between two headers.
//
// The package intentionally says nothing about how a Store persists its
// headers; see chain/chainmem, chain/badgerstore, and chain/sqlitestore for
// concrete backends.
package chain

import (
	"context"
	"errors"

	model "github.com/shieldfold/shieldnode/model/chain"
)

// ErrNotFound is returned by Store.ByID when no header is known with the
// given identifier.
var ErrNotFound = errors.New("chain: header not found")

// Store is the canonical block store the reorg engine reads from. Head may
// change between any two calls; Store implementations do not need to
// synchronize with the engine beyond guaranteeing that each individual call
// and each individual iterator observes a single, self-consistent branch.
type Store interface {
	// Genesis returns the store's genesis header. Constant for the store's
	// lifetime.
	Genesis() *model.Header

	// Head returns the currently canonical tip. May change between calls.
	Head(ctx context.Context) (*model.Header, error)

	// ByID looks up a header by hash.
	// Expected errors during normal operations:
	//   - ErrNotFound if no header is known with the given identifier
	ByID(ctx context.Context, id model.Identifier) (*model.Header, error)

	// IterateFrom walks backward along parent pointers from start toward
	// stop, which must be an ancestor of start. Yields start first, stop
	// last; if inclusive is false, stop is still yielded and the caller is
	// expected to filter it (see engine/reorg, which skips the fork header
	// this way).
	IterateFrom(ctx context.Context, start, stop model.Identifier, inclusive bool) (HeaderIterator, error)

	// IterateTo walks forward along the canonical chain from start to stop,
	// which must be a descendant of start on the branch that was canonical
	// at the time of the call. Yields start first, stop last.
	IterateTo(ctx context.Context, start, stop model.Identifier, inclusive bool) (HeaderIterator, error)
}

// HeaderIterator is a lazy, finite sequence of headers. Each call to Next is
// a suspension point at which the caller may observe cancellation.
type HeaderIterator interface {
	// Next returns the next header in the sequence. ok is false once the
	// sequence is exhausted; err is non-nil only on failure, in which case
	// ok is also false.
	Next(ctx context.Context) (header *model.Header, ok bool, err error)
}

// ForkFinder locates the lowest common ancestor of two header positions.
// All three concrete stores answer this with chain/forkfinder's generic
// parent-walking algorithm rather than a store-specific shortcut: chainmem
// embeds a forkfinder.New(s) value at construction so a single value
// satisfies both interfaces, while badgerstore and sqlitestore are wrapped
// with forkfinder.New at their call site instead (see cmd/shieldnode's
// openStore). A Store may still implement ForkFinder itself if it has an
// index that makes the answer cheaper than the generic walk.
type ForkFinder interface {
	// FindFork returns the lowest common ancestor of a and b, and whether
	// that relationship is a strict ancestor/descendant (no fork actually
	// needed). fork is nil only when a and b belong to disjoint trees; that
	// is not an error, callers treat it as "no progress possible yet".
	FindFork(ctx context.Context, a, b model.Identifier) (fork *model.Header, isLinear bool, err error)
}
