package sig

import (
	"strconv"

	"github.com/twmb/murmur3"
)

// tokenHash hashes the concatenation of tokens to a 32-bit value.
// Murmur3 is stable across runs and platforms, so signature files remain
// comparable between independently generated stores.
func tokenHash(tokens []string) uint32 {
	h := murmur3.New32()
	for _, t := range tokens {
		h.Write([]byte(t))
	}
	return h.Sum32()
}

// stringHash hashes a single string value.
func stringHash(s string) uint32 {
	return murmur3.Sum32([]byte(s))
}

// hashString renders a 32-bit hash the way function-level signatures
// concatenate their per-block hashes.
func hashString(h uint32) string {
	return strconv.FormatUint(uint64(h), 10)
}
