// Package keys generates the random, prefixed store keys used by every
// primitive in this module when a caller does not supply its own key.
package keys

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// Prefixes reserved by each primitive. A key beginning with a primitive's
// prefix is considered "auto-generated" and eligible for cleanup when the
// owning instance is torn down.
const (
	BloomPrefix   = "bloom:"
	MemlockPrefix = "tmp:memlock:"
	RecencyPrefix = "tmp:consumed:"
)

const (
	alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	suffixLen = 16
)

// New returns a random key of the form "<prefix><16 random chars>", drawn
// uniformly with replacement from [0-9a-z].
//
// Unlike the original Python implementation's math/random-backed key
// generation, New uses crypto/rand: tokens generated here double as lock
// ownership markers (see [package memlock]), and crypto/rand removes any
// predictability footgun for that use at no real cost.
func New(prefix string) string {
	var b strings.Builder
	b.Grow(len(prefix) + suffixLen)
	b.WriteString(prefix)

	n := big.NewInt(int64(len(alphabet)))
	for range suffixLen {
		idx, err := rand.Int(rand.Reader, n)
		if err != nil {
			// crypto/rand.Reader failing indicates a broken system entropy
			// source; there is no sane fallback that preserves the
			// uniqueness guarantees callers (especially memlock) depend on.
			panic("keys: crypto/rand unavailable: " + err.Error())
		}
		b.WriteByte(alphabet[idx.Int64()])
	}

	return b.String()
}

// HasPrefix reports whether key was generated by [New] with the given
// prefix, i.e. whether key is "owned" by its creating instance and eligible
// for cleanup on teardown.
func HasPrefix(key, prefix string) bool {
	return strings.HasPrefix(key, prefix)
}
