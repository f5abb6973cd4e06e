package firmware

import (
	"slices"
	"strings"
)

// Capability is a feature supported by the connected firmware.
type Capability string

const (
	CapXAxis        Capability = "X_AXIS"
	CapYAxis        Capability = "Y_AXIS"
	CapZAxis        Capability = "Z_AXIS"
	CapAAxis        Capability = "A_AXIS"
	CapBAxis        Capability = "B_AXIS"
	CapCAxis        Capability = "C_AXIS"
	CapJogging      Capability = "JOGGING"
	CapHoming       Capability = "HOMING"
	CapReturnToZero Capability = "RETURN_TO_ZERO"
	CapCheckMode    Capability = "CHECK_MODE"
	CapOverrides    Capability = "OVERRIDES"
	CapSettings     Capability = "FIRMWARE_SETTINGS"
)

// Capabilities is an immutable set of capabilities. The zero value is empty.
type Capabilities struct {
	caps []Capability
}

// NewCapabilities creates a capability set. Duplicates are dropped.
func NewCapabilities(caps ...Capability) Capabilities {
	set := make([]Capability, 0, len(caps))
	for _, c := range caps {
		if !slices.Contains(set, c) {
			set = append(set, c)
		}
	}
	slices.Sort(set)

	return Capabilities{caps: set}
}

// Has reports whether c is in the set.
func (c Capabilities) Has(capability Capability) bool {
	_, found := slices.BinarySearch(c.caps, capability)
	return found
}

// List returns a copy of the capabilities in sorted order.
func (c Capabilities) List() []Capability {
	return slices.Clone(c.caps)
}

// Len returns the number of capabilities.
func (c Capabilities) Len() int {
	return len(c.caps)
}

// IsEmpty reports whether the set is empty.
func (c Capabilities) IsEmpty() bool {
	return len(c.caps) == 0
}

// String returns the capabilities joined by commas.
func (c Capabilities) String() string {
	names := make([]string, len(c.caps))
	for i, cp := range c.caps {
		names[i] = string(cp)
	}

	return strings.Join(names, ",")
}
