// Package hashenc provides the canonical encoding and bit-offset derivation
// shared by [package bloom]: stringify a value the same way regardless of
// field order, then hash it k times to get k bit offsets into an m-bit
// array.
package hashenc

import (
	"encoding/json"
	"fmt"

	"github.com/spaolacci/murmur3"
)

// Canonicalize JSON-encodes v with deterministic key ordering.
//
// encoding/json already sorts map keys alphabetically when marshaling (see
// the Go spec for encoding/json.Marshal), so no separate canonical-JSON
// library is needed to satisfy the "stringify with sorted object keys"
// requirement — this is the one place this module leans on the standard
// library where a third-party canonicalizer might otherwise be expected,
// and it is exact, not an approximation.
func Canonicalize(v any) ([]byte, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("hashenc: value is not JSON-encodable: %w", err)
	}
	return encoded, nil
}

// Offsets returns the k bit offsets into an m-bit array that encoded hashes
// to, using MurmurHash3 x86_32 seeded 0..k-1.
//
// MurmurHash3's 32-bit output is treated as a signed value (matching Python's
// mmh3.hash, which the original implementation depended on) and reduced
// modulo m using floored (Python-style) modulo rather than Go's truncating
// %, so that offsets match the literal reference values byte-for-byte
// regardless of the sign of the intermediate hash.
func Offsets(encoded []byte, k, m int) []int {
	offsets := make([]int, k)
	for seed := range k {
		h := murmur3.New32WithSeed(uint32(seed))
		_, _ = h.Write(encoded) // murmur3's Write never returns an error.
		signed := int32(h.Sum32())
		offsets[seed] = flooredMod(int(signed), m)
	}
	return offsets
}

// flooredMod returns a%m adjusted to always be in [0, m), matching Python's
// modulo semantics for a negative dividend (Go's % is truncating and can
// return a negative result when a < 0).
func flooredMod(a, m int) int {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}
