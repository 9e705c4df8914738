package object

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashObject computes the SHA-256 of the envelope "type len\0content",
// mirroring Git's object hashing but with SHA-256.
func HashObject(objType ObjectType, data []byte) Hash {
	header := fmt.Sprintf("%s %d\x00", objType, len(data))
	h := sha256.New()
	h.Write([]byte(header))
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// Short returns the abbreviated form of the hash used in human output.
func (h Hash) Short() string {
	if len(h) < 8 {
		return string(h)
	}
	return string(h[:8])
}

// IsHexHash reports whether s is a full 64-character lowercase hex digest.
func IsHexHash(s string) bool {
	return len(s) == 64 && isHexString(s)
}

// IsHexPrefix reports whether s could abbreviate a digest: hex, at least
// four characters, no longer than a full digest.
func IsHexPrefix(s string) bool {
	return len(s) >= 4 && len(s) <= 64 && isHexString(s)
}

func isHexString(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
