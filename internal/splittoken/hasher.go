package splittoken

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Hasher turns verifier material into a salted one-way hash and checks
// material against a previously produced hash.
type Hasher interface {
	Hash(material []byte) (string, error)
	Verify(material []byte, encodedHash string) bool
}

// Argon2Variant selects the Argon2 function used for new hashes.
type Argon2Variant string

const (
	Argon2id Argon2Variant = "argon2id"
	Argon2i  Argon2Variant = "argon2i"
)

// Argon2Params are the cost parameters for new hashes. Parameters are embedded
// in every encoded hash, so changing them never breaks existing holders.
type Argon2Params struct {
	Variant   Argon2Variant
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
	KeyLen    uint32
	SaltLen   int
}

// DefaultArgon2Params follow the OWASP m=19456,t=2,p=1 recommendation.
var DefaultArgon2Params = Argon2Params{
	Variant:   Argon2id,
	Time:      2,
	MemoryKiB: 19 * 1024,
	Threads:   1,
	KeyLen:    32,
	SaltLen:   16,
}

// Upper bounds accepted when parsing a stored hash.
const (
	maxArgon2MemoryKiB = 1 << 21 // 2 GiB
	maxArgon2Time      = 64
	maxArgon2KeyLen    = 128
)

// Argon2Hasher encodes hashes in the PHC string format:
//
//	$argon2id$v=19$m=19456,t=2,p=1$<salt>$<hash>
type Argon2Hasher struct {
	params Argon2Params
	random io.Reader
}

// NewArgon2Hasher creates a hasher; zero fields fall back to DefaultArgon2Params.
func NewArgon2Hasher(p Argon2Params) *Argon2Hasher {
	d := DefaultArgon2Params
	if p.Variant != Argon2i && p.Variant != Argon2id {
		p.Variant = d.Variant
	}
	if p.Time == 0 {
		p.Time = d.Time
	}
	if p.MemoryKiB == 0 {
		p.MemoryKiB = d.MemoryKiB
	}
	if p.Threads == 0 {
		p.Threads = d.Threads
	}
	if p.KeyLen == 0 {
		p.KeyLen = d.KeyLen
	}
	if p.SaltLen <= 0 {
		p.SaltLen = d.SaltLen
	}
	return &Argon2Hasher{params: p, random: rand.Reader}
}

// Params returns the parameters used for new hashes.
func (h *Argon2Hasher) Params() Argon2Params {
	return h.params
}

func (h *Argon2Hasher) Hash(material []byte) (string, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := io.ReadFull(h.random, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2Key(h.params.Variant, material, salt, h.params.Time, h.params.MemoryKiB, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		h.params.Variant, argon2.Version,
		h.params.MemoryKiB, h.params.Time, h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the key with the parameters stored in encodedHash.
// Both argon2i and argon2id hashes are accepted regardless of the variant
// configured for new hashes.
func (h *Argon2Hasher) Verify(material []byte, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" {
		return false
	}

	variant := Argon2Variant(parts[1])
	if variant != Argon2id && variant != Argon2i {
		return false
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return false
	}

	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false
	}
	if memory == 0 || memory > maxArgon2MemoryKiB || time == 0 || time > maxArgon2Time || threads == 0 {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 || len(want) > maxArgon2KeyLen {
		return false
	}

	got := argon2Key(variant, material, salt, time, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(want, got) == 1
}

func argon2Key(variant Argon2Variant, material, salt []byte, time, memory uint32, threads uint8, keyLen uint32) []byte {
	if variant == Argon2i {
		return argon2.Key(material, salt, time, memory, threads, keyLen)
	}
	return argon2.IDKey(material, salt, time, memory, threads, keyLen)
}

// DefaultBcryptCost is the production bcrypt cost for verifier hashes.
const DefaultBcryptCost = 12

// BcryptHasher hashes verifiers with bcrypt. Material is pre-hashed with
// SHA-256 so owner ids of any length stay under bcrypt's 72 byte input limit.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a bcrypt hasher; out-of-range costs use DefaultBcryptCost.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return BcryptHasher{cost: cost}
}

func (h BcryptHasher) Hash(material []byte) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(prehash(material), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(hash), nil
}

func (h BcryptHasher) Verify(material []byte, encodedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(encodedHash), prehash(material)) == nil
}

func prehash(material []byte) []byte {
	sum := sha256.Sum256(material)
	return []byte(base64.RawStdEncoding.EncodeToString(sum[:]))
}
