package chain

import "time"

// Header is the minimal view of a block header the reorg engine depends on.
// Everything else about a real header (transactions, proofs, shielded pool
// commitments, ...) travels opaquely in Payload.
type Header struct {
	Hash         Identifier
	PreviousHash Identifier
	Sequence     uint64
	Timestamp    time.Time
	Payload      []byte
}

// ID returns the header's identifying hash. It is a method rather than a
// bare field read so callers keep working if a future revision derives the
// hash lazily from Payload instead of storing it eagerly.
func (h *Header) ID() Identifier {
	return h.Hash
}

// IsGenesis reports whether h has no parent.
func (h *Header) IsGenesis() bool {
	return h.PreviousHash.IsZero()
}

// commitmentDigestLen is the size of the shielded commitment-tree root a
// privacy-preserving chain's block payload is expected to carry as its
// first field, when it carries one at all.
const commitmentDigestLen = len(Identifier{})

// CommitmentDigest is a best-effort accessor for the shielded commitment-tree
// root a header's payload may encode. The engine itself never calls this —
// it treats Payload as opaque — but downstream indexers (see indexer/nullifierset)
// use it to avoid depending on a full payload schema just to find one field.
// ok is false if Payload is too short to contain a digest.
func CommitmentDigest(h *Header) (digest Identifier, ok bool) {
	if len(h.Payload) < commitmentDigestLen {
		return Identifier{}, false
	}
	copy(digest[:], h.Payload[:commitmentDigestLen])
	return digest, true
}
