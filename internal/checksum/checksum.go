package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumString is Sum over a string.
func SumString(s string) string {
	return Sum([]byte(s))
}

// Combine hashes several digests into one, order-sensitive. Parts are
// length-prefixed so ("ab","c") and ("a","bc") differ.
func Combine(parts ...string) string {
	h := sha256.New()
	var prefix [8]byte
	for _, p := range parts {
		n := uint64(len(p))
		for i := range prefix {
			prefix[i] = byte(n >> (8 * i))
		}
		h.Write(prefix[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Short truncates a hex digest to the 16 characters used in output file names.
func Short(digest string) string {
	if len(digest) <= 16 {
		return digest
	}
	return digest[:16]
}
