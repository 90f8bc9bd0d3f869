package ring

import (
	"crypto/sha256"
	"fmt"
	"math/big"
)

const (
	// DefaultBits is the identifier width used by the deployed ring.
	DefaultBits = 64
	// MaxBits is the widest identifier the wire format can carry.
	MaxBits = 64
)

// Identifier is a position on the ring, always in [0, Modulus).
type Identifier uint64

// IdentifierRangeError reports an identifier outside [0, Modulus).
type IdentifierRangeError struct {
	ID      Identifier
	Modulus uint64
}

func (e *IdentifierRangeError) Error() string {
	return fmt.Sprintf("identifier %d outside ring [0, %d)", e.ID, e.Modulus)
}

// Space is a bounded identifier ring of size Modulus.
type Space struct {
	modulus uint64
}

// NewSpace returns the space used by the deployed ring for an m-bit
// configuration. Its modulus is (1 << (m-1)) - 1 rather than 1 << m;
// callers that are not bound to an existing deployment should prefer
// NewSpaceWithModulus.
func NewSpace(bits int) (Space, error) {
	if bits < 2 || bits > MaxBits {
		return Space{}, fmt.Errorf("identifier width must be in [2, %d], got %d", MaxBits, bits)
	}
	return Space{modulus: (uint64(1) << (bits - 1)) - 1}, nil
}

// NewSpaceWithModulus returns a space of exactly modulus identifiers.
func NewSpaceWithModulus(modulus uint64) (Space, error) {
	if modulus == 0 {
		return Space{}, fmt.Errorf("modulus must be positive")
	}
	return Space{modulus: modulus}, nil
}

// Modulus returns the number of identifiers in the space.
func (s Space) Modulus() uint64 {
	return s.modulus
}

// Contains reports whether id lies in [0, Modulus).
func (s Space) Contains(id Identifier) bool {
	return uint64(id) < s.modulus
}

// Identify hashes key with SHA-256 and reduces the digest into the space.
// The result is a pure function of key.
func (s Space) Identify(key []byte) (Identifier, error) {
	if s.modulus == 0 {
		return 0, fmt.Errorf("identify: uninitialised space")
	}
	sum := sha256.Sum256(key)

	bigid := new(big.Int).SetBytes(sum[:])
	bigid.Mod(bigid, new(big.Int).SetUint64(s.modulus))

	id := Identifier(bigid.Uint64())
	if !s.Contains(id) {
		return 0, &IdentifierRangeError{ID: id, Modulus: s.modulus}
	}
	return id, nil
}

// IdentifyAddress derives a node identifier from its "host:port" endpoint.
func (s Space) IdentifyAddress(addr string) (Identifier, error) {
	return s.Identify([]byte(addr))
}

// Next returns id+1 wrapped into the space.
func (s Space) Next(id Identifier) Identifier {
	if uint64(id)+1 >= s.modulus {
		return 0
	}
	return id + 1
}

// Check returns an IdentifierRangeError if id is outside the space.
func (s Space) Check(id Identifier) error {
	if !s.Contains(id) {
		return &IdentifierRangeError{ID: id, Modulus: s.modulus}
	}
	return nil
}
