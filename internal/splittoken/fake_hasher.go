package splittoken

import (
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const fakeHashPrefix = "$fake$"

// FakeInsecureHasher implements Hasher with zero crypto overhead.
// The "hash" is the hex-encoded material itself. For use in tests ONLY.
type FakeInsecureHasher struct{}

func (FakeInsecureHasher) Hash(material []byte) (string, error) {
	return fakeHashPrefix + hex.EncodeToString(material), nil
}

func (FakeInsecureHasher) Verify(material []byte, encodedHash string) bool {
	if !strings.HasPrefix(encodedHash, fakeHashPrefix) {
		return false
	}
	want := []byte(strings.TrimPrefix(encodedHash, fakeHashPrefix))
	got := []byte(hex.EncodeToString(material))
	return subtle.ConstantTimeCompare(want, got) == 1
}
