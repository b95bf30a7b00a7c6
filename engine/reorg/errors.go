package reorg

import (
	"errors"
	"fmt"

	model "github.com/shieldfold/shieldnode/model/chain"
)

// ErrStoreInconsistent is returned when the store no longer contains a
// header the Processor's own cursor points to, or when an iterator yields a
// header whose parent doesn't match the previous one. This is a fatal
// condition: the cursor's universe is broken and the cursor is left
// untouched rather than guessed at.
var ErrStoreInconsistent = errors.New("reorg: store is inconsistent with processor cursor")

// storeInconsistentf wraps ErrStoreInconsistent with detail, keeping
// errors.Is(err, ErrStoreInconsistent) true for callers that only care about
// the category.
func storeInconsistentf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrStoreInconsistent, fmt.Sprintf(format, args...))
}

// unexpectedHash builds an ErrStoreInconsistent for an iterator step that
// yielded a header other than the one the walk expected to continue from —
// the load-bearing sanity check that catches a store silently rewriting
// history out from under an in-progress iteration.
func unexpectedHash(walked *model.Header, expected model.Identifier) error {
	return storeInconsistentf(
		"iterator yielded header %s, expected %s",
		walked.Hash, expected,
	)
}

// unexpectedParent builds an ErrStoreInconsistent for an iterator step whose
// parent pointer doesn't match the header the walk expected to continue
// from.
func unexpectedParent(walked *model.Header, expectedParent model.Identifier) error {
	return storeInconsistentf(
		"header %s has previous hash %s, expected %s",
		walked.Hash, walked.PreviousHash, expectedParent,
	)
}
