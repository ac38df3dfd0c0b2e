package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// ShortLen is the number of hex characters kept by Short.
const ShortLen = 16

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Short returns the first ShortLen hex characters of the SHA-256 digest of s.
func Short(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:ShortLen/2])
}
