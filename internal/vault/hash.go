package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// DefaultTokenBytes is the token length used when GenerateToken gets n <= 0.
const DefaultTokenBytes = 32

// Hash returns the hex SHA-256 digest of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CompareHash reports whether digest is the Hash of data.
//
// The comparison runs over fixed-length digests with
// subtle.ConstantTimeCompare, so its duration does not depend on where the
// values first differ. A malformed digest is compared against zeros and
// reported as a mismatch.
func CompareHash(data []byte, digest string) bool {
	sum := sha256.Sum256(data)

	want, err := hex.DecodeString(digest)
	valid := err == nil && len(want) == sha256.Size
	if !valid {
		want = make([]byte, sha256.Size)
	}
	return subtle.ConstantTimeCompare(sum[:], want) == 1 && valid
}

// GenerateToken returns n cryptographically random bytes, hex encoded.
func GenerateToken(n int) (string, error) {
	if n <= 0 {
		n = DefaultTokenBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
