package chain

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Identifier is a fixed-width, bytewise-comparable handle for a header.
// It plays the role of a block hash without committing this package to any
// particular digest function; header stores are free to compute it however
// they like.
type Identifier [32]byte

// ZeroIdentifier is the sentinel used as the previous-hash of a genesis
// header, and as the zero value of Identifier.
var ZeroIdentifier = Identifier{}

// IsZero reports whether id is the zero identifier.
func (id Identifier) IsZero() bool {
	return id == ZeroIdentifier
}

// Hex returns the lowercase hex encoding of id.
func (id Identifier) Hex() string {
	return hex.EncodeToString(id[:])
}

// String implements fmt.Stringer.
func (id Identifier) String() string {
	return id.Hex()
}

// MarshalJSON encodes id as a quoted hex string.
func (id Identifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.Hex())
}

// UnmarshalJSON decodes id from a quoted hex string.
func (id *Identifier) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return id.UnmarshalText([]byte(s))
}

// UnmarshalText decodes id from its hex representation.
func (id *Identifier) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("invalid identifier hex: %w", err)
	}
	if len(decoded) != len(id) {
		return errors.New("invalid identifier length")
	}
	copy(id[:], decoded)
	return nil
}

// IdentifierFromHex parses a hex string into an Identifier.
func IdentifierFromHex(s string) (Identifier, error) {
	var id Identifier
	err := id.UnmarshalText([]byte(s))
	return id, err
}
