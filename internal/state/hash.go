package state

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// HashSize is the byte length of a state fingerprint.
const HashSize = 32

// Hash is a 256-bit blake3 content hash.
type Hash [HashSize]byte

// String returns the lowercase hex form of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHash decodes a 64-character hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parse hash: %w", err)
	}
	if len(raw) != HashSize {
		return h, fmt.Errorf("parse hash: got %d bytes, want %d", len(raw), HashSize)
	}
	copy(h[:], raw)
	return h, nil
}

// VolatileFunc reports whether a top-level state key is volatile: present
// for the evaluator's convenience (raw input mirrors and the like) but
// excluded from the audit trail. Two states that differ only in volatile
// keys must produce identical fingerprints.
type VolatileFunc func(key string) bool

// Canonicalize strips volatile top-level keys from the state and returns
// the canonical byte encoding of what remains. The input object is not
// modified. A nil volatile predicate keeps every key.
func Canonicalize(st Object, volatile VolatileFunc) ([]byte, error) {
	kept := make(Object, len(st))
	for k, v := range st {
		if volatile != nil && volatile(k) {
			continue
		}
		kept[k] = v
	}
	data, err := MarshalCanonical(kept)
	if err != nil {
		return nil, fmt.Errorf("canonicalize state: %w", err)
	}
	return data, nil
}

// HashState canonicalizes the state (minus volatile keys) and returns its
// blake3-256 fingerprint. This is the frame state hash everything else in
// the engine leans on.
func HashState(st Object, volatile VolatileFunc) (Hash, error) {
	data, err := Canonicalize(st, volatile)
	if err != nil {
		return Hash{}, err
	}
	return Hash(blake3.Sum256(data)), nil
}

// HashBytes returns the blake3-256 fingerprint of raw bytes. Used for
// entry-file and tape digests recorded in manifests.
func HashBytes(data []byte) Hash {
	return Hash(blake3.Sum256(data))
}

// Domain prefixes for scoped hashing. The NUL separator prevents
// domain/data boundary ambiguity.
const (
	DomainEntry = "geoul/entry/v1"
	DomainTape  = "geoul/tape/v1"
)

// HashWithDomain computes blake3-256 over domain + 0x00 + data.
func HashWithDomain(domain string, data []byte) Hash {
	h := blake3.New(HashSize, nil)
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}
