package reorg

import model "github.com/shieldfold/shieldnode/model/chain"

// Cursor is the Processor's view of "the last header I have successfully
// emitted". The zero value is Unseeded: a Cursor is either Unseeded (no
// events emitted yet) or At(hash, sequence). Once seeded it stays seeded
// for the life of the Processor, there is no operation that un-seeds it.
type Cursor struct {
	seeded   bool
	hash     model.Identifier
	sequence uint64
}

// NewSeededCursor returns a Cursor already At(hash, sequence). Used when a
// Processor is constructed with a known starting position.
func NewSeededCursor(hash model.Identifier, sequence uint64) Cursor {
	return Cursor{seeded: true, hash: hash, sequence: sequence}
}

// Unseeded reports whether no events have been emitted yet.
func (c Cursor) Unseeded() bool {
	return !c.seeded
}

// Hash returns the cursor's current header hash. ok is false iff Unseeded.
func (c Cursor) Hash() (model.Identifier, bool) {
	return c.hash, c.seeded
}

// Sequence returns the cursor's current sequence number. ok is false iff Unseeded.
func (c Cursor) Sequence() (uint64, bool) {
	return c.sequence, c.seeded
}

// seedAt returns a Cursor pointing At(hash, sequence).
func seedAt(hash model.Identifier, sequence uint64) Cursor {
	return Cursor{seeded: true, hash: hash, sequence: sequence}
}
