// Package verifier defines the narrow boundary between a chain.Store and
// whatever proves a header is allowed onto the chain before the store ever
// accepts it. The processor itself never calls this — by the time a header
// reaches the processor via a Store, it is already trusted.
package verifier

import (
	"context"

	model "github.com/shieldfold/shieldnode/model/chain"
)

// Validator checks a header before a Store accepts it. Implementations are
// free to check proof-of-work, a shielded proof, a validator signature, or
// nothing at all — the store only needs a narrow contract to call through.
type Validator interface {
	ValidateHeader(ctx context.Context, header *model.Header) error
}

// AlwaysValid accepts every header. It is the default for tests and for
// store backends that delegate validation to a component upstream of them
// (e.g. a network sync layer that only ever hands the store headers it has
// already checked).
type AlwaysValid struct{}

// ValidateHeader implements Validator.
func (AlwaysValid) ValidateHeader(context.Context, *model.Header) error {
	return nil
}

var _ Validator = AlwaysValid{}
