package webhosting

import (
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"slices"

	"github.com/kuitang/hostdesk/internal/errs"
)

var ErrInvalidCapability = errs.New(errs.InvalidArgument, "invalid capability")

var capabilityNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_.-]{0,63}$`)

// Capability is a named feature with optional string configuration,
// e.g. {Name: "php", Config: {"version": "8.3"}}.
type Capability struct {
	Name   string            `json:"name"`
	Config map[string]string `json:"config,omitempty"`
}

func (c Capability) Equal(other Capability) bool {
	return c.Name == other.Name && maps.Equal(c.Config, other.Config)
}

// Capabilities is an immutable set of capabilities keyed by name. Every
// modifying method returns a new set.
type Capabilities struct {
	byName map[string]Capability
}

// NewCapabilities builds a set. A later capability with the same name
// replaces an earlier one.
func NewCapabilities(caps ...Capability) Capabilities {
	return Capabilities{}.Add(caps...)
}

// Add returns a set that also holds caps; existing names get the new config.
func (c Capabilities) Add(caps ...Capability) Capabilities {
	next := make(map[string]Capability, len(c.byName)+len(caps))
	maps.Copy(next, c.byName)
	for _, cp := range caps {
		next[cp.Name] = Capability{Name: cp.Name, Config: maps.Clone(cp.Config)}
	}
	return Capabilities{byName: next}
}

// Remove returns a set without the named capabilities. Unknown names are ignored.
func (c Capabilities) Remove(names ...string) Capabilities {
	next := maps.Clone(c.byName)
	for _, n := range names {
		delete(next, n)
	}
	return Capabilities{byName: next}
}

func (c Capabilities) Has(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// Get returns a copy of the named capability.
func (c Capabilities) Get(name string) (Capability, bool) {
	cp, ok := c.byName[name]
	if !ok {
		return Capability{}, false
	}
	return Capability{Name: cp.Name, Config: maps.Clone(cp.Config)}, true
}

// Names returns the capability names in sorted order.
func (c Capabilities) Names() []string {
	return slices.Sorted(maps.Keys(c.byName))
}

func (c Capabilities) Len() int {
	return len(c.byName)
}

// List returns copies of all capabilities sorted by name.
func (c Capabilities) List() []Capability {
	out := make([]Capability, 0, len(c.byName))
	for _, n := range c.Names() {
		cp, _ := c.Get(n)
		out = append(out, cp)
	}
	return out
}

func (c Capabilities) Equal(other Capabilities) bool {
	return maps.EqualFunc(c.byName, other.byName, Capability.Equal)
}

// Validate checks every capability name.
func (c Capabilities) Validate() error {
	for _, n := range c.Names() {
		if !capabilityNamePattern.MatchString(n) {
			return fmt.Errorf("%w: name %q", ErrInvalidCapability, n)
		}
	}
	return nil
}

// CapabilityDiff describes how a set changed. All lists are sorted by name.
type CapabilityDiff struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Changed []string `json:"changed"`
}

func (d CapabilityDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Diff reports what changes when going from c to next.
func (c Capabilities) Diff(next Capabilities) CapabilityDiff {
	d := CapabilityDiff{Added: []string{}, Removed: []string{}, Changed: []string{}}
	for _, n := range c.Names() {
		after, ok := next.byName[n]
		switch {
		case !ok:
			d.Removed = append(d.Removed, n)
		case !c.byName[n].Equal(after):
			d.Changed = append(d.Changed, n)
		}
	}
	for _, n := range next.Names() {
		if !c.Has(n) {
			d.Added = append(d.Added, n)
		}
	}
	return d
}

// MarshalJSON encodes the set as {"name": {config...}}.
func (c Capabilities) MarshalJSON() ([]byte, error) {
	out := make(map[string]map[string]string, len(c.byName))
	for n, cp := range c.byName {
		cfg := cp.Config
		if cfg == nil {
			cfg = map[string]string{}
		}
		out[n] = cfg
	}
	return json.Marshal(out)
}

func (c *Capabilities) UnmarshalJSON(data []byte) error {
	var in map[string]map[string]string
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	caps := make([]Capability, 0, len(in))
	for n, cfg := range in {
		if len(cfg) == 0 {
			cfg = nil
		}
		caps = append(caps, Capability{Name: n, Config: cfg})
	}
	*c = NewCapabilities(caps...)
	return nil
}
