// Package gitlib provides the repository handle used by the extraction engine.
// It wraps the libgit2 C library through git2go.
package gitlib

import (
	"errors"
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// Constants for hash operations.
const (
	// HashSize is the size of a SHA-1 hash in bytes.
	HashSize = 20
	// HashHexSize is the size of a hex-encoded SHA-1 hash.
	HashHexSize = 40
	// HexBase is the base for hexadecimal digits a-f.
	hexBase = 10
	// HexShift is the bit shift for the high nibble.
	hexShift = 4
	// invalidNibble marks a byte that is not a hex digit.
	invalidNibble = 0xff
)

// EmptyTreeHex is the id git assigns to the tree with no entries.
// Root commits are diffed against it.
const EmptyTreeHex = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// ErrInvalidHash is returned when a string is not a 40-digit hex object id.
var ErrInvalidHash = errors.New("invalid object id")

// Hash represents a git object hash (SHA-1).
type Hash [HashSize]byte

// EmptyTreeHash returns the id of the canonical empty tree.
func EmptyTreeHash() Hash {
	return NewHash(EmptyTreeHex)
}

// NewHash creates a Hash from a hex string.
// Invalid digits decode as zero; use ParseHash to validate input.
func NewHash(hexStr string) Hash {
	var hash Hash

	for i := 0; i < HashSize && i*2+1 < len(hexStr); i++ {
		c1, c2 := hexCharToNibble(hexStr[i*2]), hexCharToNibble(hexStr[i*2+1])
		if c1 == invalidNibble {
			c1 = 0
		}

		if c2 == invalidNibble {
			c2 = 0
		}

		hash[i] = c1<<hexShift | c2
	}

	return hash
}

// ParseHash decodes a full 40-digit hex object id.
func ParseHash(hexStr string) (Hash, error) {
	if len(hexStr) != HashHexSize {
		return Hash{}, fmt.Errorf("%w: %q", ErrInvalidHash, hexStr)
	}

	var hash Hash

	for i := range HashSize {
		c1, c2 := hexCharToNibble(hexStr[i*2]), hexCharToNibble(hexStr[i*2+1])
		if c1 == invalidNibble || c2 == invalidNibble {
			return Hash{}, fmt.Errorf("%w: %q", ErrInvalidHash, hexStr)
		}

		hash[i] = c1<<hexShift | c2
	}

	return hash, nil
}

// hexCharToNibble converts a hex character to its 4-bit value.
func hexCharToNibble(char byte) byte {
	switch {
	case char >= '0' && char <= '9':
		return char - '0'
	case char >= 'a' && char <= 'f':
		return char - 'a' + hexBase
	case char >= 'A' && char <= 'F':
		return char - 'A' + hexBase
	default:
		return invalidNibble
	}
}

// HashFromOid converts a libgit2 Oid to Hash.
func HashFromOid(oid *git2go.Oid) Hash {
	var h Hash
	if oid == nil {
		return h
	}

	copy(h[:], oid[:])

	return h
}

// String returns the hex representation of the hash.
func (h Hash) String() string {
	const hexChars = "0123456789abcdef"

	buf := make([]byte, HashHexSize)

	for i, byteVal := range h {
		buf[i*2] = hexChars[byteVal>>hexShift]
		buf[i*2+1] = hexChars[byteVal&0x0f]
	}

	return string(buf)
}

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// ToOid converts Hash back to libgit2 Oid.
func (h Hash) ToOid() *git2go.Oid {
	oid := new(git2go.Oid)
	copy(oid[:], h[:])

	return oid
}

// MarshalText encodes the hash as 40 hex digits.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes 40 hex digits.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}

	*h = parsed

	return nil
}
