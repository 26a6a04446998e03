// Package crypto derives purpose-bound keys from the server master key.
//
// The master key is never used directly. Every consumer gets its own 32-byte
// key from HKDF-SHA256 with an info string of the form "<purpose>:v<version>",
// so rotating one key never touches another.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the size of a derived key in bytes (256 bits)
	KeySize = 32

	// MasterKeySize is the decoded size of MASTER_KEY.
	MasterKeySize = 32
)

// Purposes used for domain separation.
const (
	PurposeDatabase = "database"
)

// DeriveKey derives a key for purpose from the master key using HKDF-SHA256.
// The same inputs always produce the same key.
func DeriveKey(masterKey []byte, purpose string, version int) []byte {
	info := fmt.Sprintf("%s:v%d", purpose, version)

	// Salt is nil - the master key is already uniformly random
	hkdfReader := hkdf.New(sha256.New, masterKey, nil, []byte(info))

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		// HKDF can produce 255*32 bytes; 32 never fails
		panic(fmt.Sprintf("HKDF failed: %v", err))
	}
	return key
}

// ParseMasterKey decodes a 64-character hex master key.
func ParseMasterKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("master key is not hex: %w", err)
	}
	if len(key) != MasterKeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", MasterKeySize, len(key))
	}
	return key, nil
}

// DatabaseKeyHex returns the hex-encoded SQLCipher key for the given master
// key. An empty master key yields an empty database key (no encryption).
func DatabaseKeyHex(masterKeyHex string) (string, error) {
	if masterKeyHex == "" {
		return "", nil
	}
	master, err := ParseMasterKey(masterKeyHex)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(DeriveKey(master, PurposeDatabase, 1)), nil
}
