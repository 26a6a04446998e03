// Package webhosting models webhosting plans: the resource Constraints a plan
// grants and the Capabilities (features) it enables.
package webhosting

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/kuitang/hostdesk/internal/errs"
)

// Binary size units.
const (
	B   uint64 = 1
	KiB        = B << 10
	MiB        = KiB << 10
	GiB        = MiB << 10
	TiB        = GiB << 10
	PiB        = TiB << 10
)

var ErrInvalidByteSize = errs.New(errs.InvalidArgument, "invalid byte size")

// ByteSize is an amount of storage, or infinity for "unlimited".
// The zero value is 0 bytes.
type ByteSize struct {
	n   uint64
	inf bool
}

// Size returns a finite ByteSize of n bytes.
func Size(n uint64) ByteSize {
	return ByteSize{n: n}
}

// Inf returns the unlimited ByteSize.
func Inf() ByteSize {
	return ByteSize{inf: true}
}

// ParseByteSize parses "1.5 GiB", "500MB", "1024" (bytes) or "inf".
// SI (kB, MB) and IEC (KiB, MiB) units are both accepted.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "inf", "infinite", "unlimited", "∞":
		return Inf(), nil
	case "":
		return ByteSize{}, fmt.Errorf("%w: empty", ErrInvalidByteSize)
	}
	if strings.HasPrefix(s, "-") {
		return ByteSize{}, fmt.Errorf("%w: %q is negative", ErrInvalidByteSize, s)
	}
	if b, ok := parseExact(s); ok {
		return b, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return ByteSize{}, fmt.Errorf("%w: %q", ErrInvalidByteSize, s)
	}
	return Size(n), nil
}

var exactPattern = regexp.MustCompile(`(?i)^([0-9]+)\s*(b|kib|mib|gib|tib|pib)?$`)

var iecUnits = map[string]uint64{"": B, "b": B, "kib": KiB, "mib": MiB, "gib": GiB, "tib": TiB, "pib": PiB}

// parseExact handles whole numbers in IEC units without the float rounding
// humanize applies, so every String() output parses back to the same size.
func parseExact(s string) (ByteSize, bool) {
	m := exactPattern.FindStringSubmatch(s)
	if m == nil {
		return ByteSize{}, false
	}
	n, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return ByteSize{}, false
	}
	unit := iecUnits[strings.ToLower(m[2])]
	if n > math.MaxUint64/unit {
		return ByteSize{}, false
	}
	return Size(n * unit), true
}

// MustParseByteSize is ParseByteSize that panics on error. For literals.
func MustParseByteSize(s string) ByteSize {
	b, err := ParseByteSize(s)
	if err != nil {
		panic(err)
	}
	return b
}

// Bytes returns the size in bytes; math.MaxUint64 when unlimited.
func (b ByteSize) Bytes() uint64 {
	if b.inf {
		return math.MaxUint64
	}
	return b.n
}

func (b ByteSize) IsInf() bool {
	return b.inf
}

func (b ByteSize) IsZero() bool {
	return !b.inf && b.n == 0
}

func (b ByteSize) Equal(other ByteSize) bool {
	return b.inf == other.inf && (b.inf || b.n == other.n)
}

// LessThan orders sizes with unlimited above every finite size.
func (b ByteSize) LessThan(other ByteSize) bool {
	switch {
	case b.inf:
		return false
	case other.inf:
		return true
	default:
		return b.n < other.n
	}
}

// Format renders a rounded human form such as "1.5 GiB".
func (b ByteSize) Format() string {
	if b.inf {
		return "inf"
	}
	return humanize.IBytes(b.n)
}

// String renders the exact canonical form: the largest IEC unit that divides
// the size evenly, e.g. "1536 MiB". ParseByteSize(b.String()) == b.
func (b ByteSize) String() string {
	if b.inf {
		return "inf"
	}
	if b.n == 0 {
		return "0 B"
	}
	units := []struct {
		size uint64
		name string
	}{{PiB, "PiB"}, {TiB, "TiB"}, {GiB, "GiB"}, {MiB, "MiB"}, {KiB, "KiB"}}
	for _, u := range units {
		if b.n%u.size == 0 {
			return strconv.FormatUint(b.n/u.size, 10) + " " + u.name
		}
	}
	return strconv.FormatUint(b.n, 10) + " B"
}

// MarshalText encodes the canonical String form; JSON and YAML use it.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}
