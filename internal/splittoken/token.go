// Package splittoken implements selector/verifier split tokens for
// password-reset and confirmation links.
//
// A token is 42 random bytes rendered as 56 URL-safe base64 characters. The
// first 32 characters (24 bytes) are the selector, a non-secret lookup key.
// The remaining 24 characters (18 bytes) are the verifier, which is only ever
// persisted as a salted slow hash inside a ValueHolder.
package splittoken

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kuitang/hostdesk/internal/errs"
)

const (
	SelectorBytes = 24
	VerifierBytes = 18

	// Encoded lengths. Both byte counts are multiples of 3, so the encoding of
	// the whole token is the selector encoding followed by the verifier encoding.
	SelectorLength = SelectorBytes / 3 * 4
	VerifierLength = VerifierBytes / 3 * 4
	TokenLength    = SelectorLength + VerifierLength
)

var (
	ErrInvalidToken  = errs.New(errs.InvalidArgument, "invalid token")
	ErrNotFreshToken = errs.New(errs.FailedPrecondition, "value holder can only be created from a newly generated token")
)

var encoding = base64.RawURLEncoding

// SplitToken is an immutable selector/verifier credential.
type SplitToken struct {
	selector     string
	verifier     string
	ownerID      string
	verifierHash string
	expiresAt    time.Time
	hasher       Hasher
}

// Factory creates and reconstructs tokens that share one Hasher.
type Factory struct {
	hasher Hasher
	random io.Reader
	now    func() time.Time
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithRandom replaces the random source. Intended for testing.
func WithRandom(r io.Reader) FactoryOption {
	return func(f *Factory) {
		f.random = r
	}
}

// WithClock replaces the clock used by GenerateWithTTL.
func WithClock(now func() time.Time) FactoryOption {
	return func(f *Factory) {
		f.now = now
	}
}

// NewFactory creates a token factory. A nil hasher uses Argon2id defaults.
func NewFactory(hasher Hasher, opts ...FactoryOption) *Factory {
	if hasher == nil {
		hasher = NewArgon2Hasher(DefaultArgon2Params)
	}
	f := &Factory{hasher: hasher, random: rand.Reader, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Hasher returns the hasher shared by tokens of this factory.
func (f *Factory) Hasher() Hasher {
	return f.hasher
}

// Generate creates a fresh token. A non-empty ownerID is bound into the
// verifier hash and must be presented again when matching.
func (f *Factory) Generate(ownerID string) (*SplitToken, error) {
	raw := make([]byte, SelectorBytes+VerifierBytes)
	if _, err := io.ReadFull(f.random, raw); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}

	t := &SplitToken{
		selector: encoding.EncodeToString(raw[:SelectorBytes]),
		verifier: encoding.EncodeToString(raw[SelectorBytes:]),
		ownerID:  ownerID,
		hasher:   f.hasher,
	}

	hash, err := f.hasher.Hash(verifierMaterial(t.verifier, ownerID))
	if err != nil {
		return nil, fmt.Errorf("hash verifier: %w", err)
	}
	t.verifierHash = hash
	return t, nil
}

// GenerateWithTTL is Generate followed by ExpireAt(now + ttl).
func (f *Factory) GenerateWithTTL(ownerID string, ttl time.Duration) (*SplitToken, error) {
	t, err := f.Generate(ownerID)
	if err != nil {
		return nil, err
	}
	return t.ExpireAt(f.now().Add(ttl)), nil
}

// FromString reconstructs a token from the string handed to the user.
// The result can be matched against holders but cannot produce a new one.
func (f *Factory) FromString(full string) (*SplitToken, error) {
	if len(full) != TokenLength {
		return nil, fmt.Errorf("%w: expected %d characters, got %d", ErrInvalidToken, TokenLength, len(full))
	}
	raw, err := encoding.DecodeString(full)
	if err != nil || len(raw) != SelectorBytes+VerifierBytes {
		return nil, fmt.Errorf("%w: not url-safe base64", ErrInvalidToken)
	}

	return &SplitToken{
		selector: full[:SelectorLength],
		verifier: full[SelectorLength:],
		hasher:   f.hasher,
	}, nil
}

// Selector returns the public lookup half of the token.
func (t *SplitToken) Selector() string {
	return t.selector
}

// Token returns the full credential. Only hand this to the token's owner.
func (t *SplitToken) Token() string {
	return t.selector + t.verifier
}

// OwnerID returns the owner bound at generation, or "" for unbound and
// reconstructed tokens.
func (t *SplitToken) OwnerID() string {
	return t.ownerID
}

// IsFresh reports whether the token was generated (rather than parsed) and
// can therefore produce a ValueHolder.
func (t *SplitToken) IsFresh() bool {
	return t.verifierHash != ""
}

// ExpireAt returns a copy of the token that carries an expiry. The expiry is
// copied into value holders created from the copy.
func (t *SplitToken) ExpireAt(at time.Time) *SplitToken {
	c := *t
	c.expiresAt = at
	return &c
}

// ExpiresAt returns the expiry set with ExpireAt.
func (t *SplitToken) ExpiresAt() (time.Time, bool) {
	return t.expiresAt, !t.expiresAt.IsZero()
}

// HolderOption configures ToValueHolder.
type HolderOption func(*ValueHolder)

// WithExpiry sets the holder expiry, overriding any ExpireAt on the token.
func WithExpiry(at time.Time) HolderOption {
	return func(h *ValueHolder) {
		at := at
		h.ExpiresAt = &at
	}
}

// WithMetadata attaches opaque metadata to the holder.
func WithMetadata(md map[string]string) HolderOption {
	return func(h *ValueHolder) {
		h.Metadata = cloneMetadata(md)
	}
}

// ToValueHolder returns the persistable form of a freshly generated token.
func (t *SplitToken) ToValueHolder(opts ...HolderOption) (*ValueHolder, error) {
	if !t.IsFresh() {
		return nil, ErrNotFreshToken
	}

	h := &ValueHolder{
		Selector:     t.selector,
		VerifierHash: t.verifierHash,
	}
	if at, ok := t.ExpiresAt(); ok {
		h.ExpiresAt = &at
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Matches reports whether this token corresponds to the stored selector and
// verifier hash. The selector comparison is constant time and the verifier
// is checked by the Hasher; ownerID must equal the id bound at generation.
func (t *SplitToken) Matches(selector, verifierHash, ownerID string) bool {
	if selector == "" || verifierHash == "" || t.hasher == nil {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(t.selector), []byte(selector)) != 1 {
		return false
	}
	return t.hasher.Verify(verifierMaterial(t.verifier, ownerID), verifierHash)
}

// MatchesHolder is Matches against a value holder. Expiry is not checked;
// use ValueHolder.IsValid for that.
func (t *SplitToken) MatchesHolder(h *ValueHolder, ownerID string) bool {
	if h == nil {
		return false
	}
	return t.Matches(h.Selector, h.VerifierHash, ownerID)
}

// String never includes the verifier.
func (t *SplitToken) String() string {
	return fmt.Sprintf("splittoken(selector=%s, verifier=[REDACTED])", t.selector)
}

// LogValue implements slog.LogValuer without exposing the verifier.
func (t *SplitToken) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("selector", t.selector),
		slog.Bool("owner_bound", t.ownerID != ""),
	)
}

// verifierMaterial is the hash input: verifier, a NUL separator, then the owner id.
// The verifier alphabet never contains NUL, so the encoding is unambiguous.
func verifierMaterial(verifier, ownerID string) []byte {
	b := make([]byte, 0, len(verifier)+1+len(ownerID))
	b = append(b, verifier...)
	b = append(b, 0)
	b = append(b, ownerID...)
	return b
}
