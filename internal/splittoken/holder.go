package splittoken

import (
	"crypto/subtle"
	"maps"
	"time"
)

// ValueHolder is the persisted side of a split token. It can verify a
// presented token but never reconstruct the verifier.
type ValueHolder struct {
	Selector     string
	VerifierHash string
	ExpiresAt    *time.Time
	Metadata     map[string]string
}

// IsExpired reports whether an expiry is set and now is at or past it.
// A zero now means the current time.
func (h *ValueHolder) IsExpired(now time.Time) bool {
	if h.ExpiresAt == nil {
		return false
	}
	if now.IsZero() {
		now = time.Now()
	}
	return !now.Before(*h.ExpiresAt)
}

// IsValid reports whether token matches this holder and the holder has not
// expired. Mismatches and expiry yield false, never an error.
func (h *ValueHolder) IsValid(token *SplitToken, ownerID string, now time.Time) bool {
	if h == nil || token == nil {
		return false
	}
	if h.IsExpired(now) {
		return false
	}
	return token.MatchesHolder(h, ownerID)
}

// Equal reports whether both holders describe the same credential.
func (h *ValueHolder) Equal(other *ValueHolder) bool {
	if h == nil || other == nil {
		return h == other
	}
	return h.Selector == other.Selector &&
		subtle.ConstantTimeCompare([]byte(h.VerifierHash), []byte(other.VerifierHash)) == 1
}

// WithMetadata returns a copy with the metadata replaced.
func (h *ValueHolder) WithMetadata(md map[string]string) *ValueHolder {
	c := h.clone()
	c.Metadata = cloneMetadata(md)
	return c
}

// WithExpiry returns a copy with the expiry replaced.
func (h *ValueHolder) WithExpiry(at time.Time) *ValueHolder {
	c := h.clone()
	c.ExpiresAt = &at
	return c
}

// MetadataValue returns a single metadata entry.
func (h *ValueHolder) MetadataValue(key string) (string, bool) {
	if h == nil || h.Metadata == nil {
		return "", false
	}
	v, ok := h.Metadata[key]
	return v, ok
}

// MayReplace reports whether a new token may take the place of current.
// An absent or expired holder may always be replaced; an active one only
// when its metadata differs from expected, so a still-valid token for the
// same purpose is not silently re-issued.
func MayReplace(current *ValueHolder, expected map[string]string, now time.Time) bool {
	if current == nil || current.IsExpired(now) {
		return true
	}
	return !metadataEqual(current.Metadata, expected)
}

func (h *ValueHolder) clone() *ValueHolder {
	c := *h
	if h.ExpiresAt != nil {
		at := *h.ExpiresAt
		c.ExpiresAt = &at
	}
	c.Metadata = cloneMetadata(h.Metadata)
	return &c
}

func cloneMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return nil
	}
	return maps.Clone(md)
}

func metadataEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	return maps.Equal(a, b)
}
