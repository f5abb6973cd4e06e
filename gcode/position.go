package gcode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Units is the unit system of a position or of the firmware parser.
type Units uint8

const (
	UnitsUnknown Units = iota
	UnitsMM
	UnitsInch
)

const mmPerInch = 25.4

// String returns string representation of the units.
func (u Units) String() string {
	switch u {
	case UnitsMM:
		return "mm"
	case UnitsInch:
		return "inch"
	default:
		return "unknown"
	}
}

// Code returns the G-code word selecting the units, G21 or G20.
func (u Units) Code() string {
	if u == UnitsInch {
		return "G20"
	}

	return "G21"
}

// ScaleTo returns the multiplier converting a value in u to target.
// Unknown units convert with a factor of 1.
func (u Units) ScaleTo(target Units) float64 {
	switch {
	case u == UnitsMM && target == UnitsInch:
		return 1 / mmPerInch
	case u == UnitsInch && target == UnitsMM:
		return mmPerInch
	default:
		return 1
	}
}

// Axis identifies a machine axis.
type Axis byte

const (
	AxisX Axis = 'X'
	AxisY Axis = 'Y'
	AxisZ Axis = 'Z'
	AxisA Axis = 'A'
	AxisB Axis = 'B'
	AxisC Axis = 'C'
)

// Position is a machine or work position. It is a plain value; copies never
// share state.
type Position struct {
	X, Y, Z float64
	A, B, C float64
	Units   Units
}

// NewPosition creates an XYZ position in the given units.
func NewPosition(x, y, z float64, units Units) Position {
	return Position{X: x, Y: y, Z: z, Units: units}
}

// Get returns the coordinate of axis.
func (p Position) Get(axis Axis) float64 {
	switch axis {
	case AxisX:
		return p.X
	case AxisY:
		return p.Y
	case AxisZ:
		return p.Z
	case AxisA:
		return p.A
	case AxisB:
		return p.B
	case AxisC:
		return p.C
	default:
		return math.NaN()
	}
}

// ConvertTo returns p expressed in target units. Rotary axes are not scaled.
func (p Position) ConvertTo(target Units) Position {
	if p.Units == target || p.Units == UnitsUnknown || target == UnitsUnknown {
		return p
	}

	scale := p.Units.ScaleTo(target)

	return Position{
		X: p.X * scale, Y: p.Y * scale, Z: p.Z * scale,
		A: p.A, B: p.B, C: p.C,
		Units: target,
	}
}

// Sub returns p - o, converting o to the units of p first.
func (p Position) Sub(o Position) Position {
	o = o.ConvertTo(p.Units)

	return Position{
		X: p.X - o.X, Y: p.Y - o.Y, Z: p.Z - o.Z,
		A: p.A - o.A, B: p.B - o.B, C: p.C - o.C,
		Units: p.Units,
	}
}

// Add returns p + o, converting o to the units of p first.
func (p Position) Add(o Position) Position {
	o = o.ConvertTo(p.Units)

	return Position{
		X: p.X + o.X, Y: p.Y + o.Y, Z: p.Z + o.Z,
		A: p.A + o.A, B: p.B + o.B, C: p.C + o.C,
		Units: p.Units,
	}
}

// String returns the position formatted as "X:.. Y:.. Z:.. units".
func (p Position) String() string {
	return fmt.Sprintf("X:%.3f Y:%.3f Z:%.3f %s", p.X, p.Y, p.Z, p.Units)
}

// axisOrder is the order in which axes are written to G-code.
var axisOrder = []Axis{AxisX, AxisY, AxisZ, AxisA, AxisB, AxisC}

// IsLinear reports whether a is a linear axis, scaled by unit conversion.
func (a Axis) IsLinear() bool {
	return a == AxisX || a == AxisY || a == AxisZ
}

// PartialPosition holds coordinates for a subset of axes. It is immutable;
// With returns a modified copy.
type PartialPosition struct {
	values map[Axis]float64
	units  Units
}

// NewPartialPosition creates an empty partial position in the given units.
func NewPartialPosition(units Units) PartialPosition {
	return PartialPosition{units: units}
}

// With returns a copy of p with axis set to v.
func (p PartialPosition) With(axis Axis, v float64) PartialPosition {
	values := make(map[Axis]float64, len(p.values)+1)
	for a, val := range p.values {
		values[a] = val
	}
	values[axis] = v

	return PartialPosition{values: values, units: p.units}
}

// Get returns the coordinate of axis and whether it is set.
func (p PartialPosition) Get(axis Axis) (float64, bool) {
	v, ok := p.values[axis]
	return v, ok
}

// Axes returns the set axes in X, Y, Z, A, B, C order.
func (p PartialPosition) Axes() []Axis {
	axes := make([]Axis, 0, len(p.values))
	for _, a := range axisOrder {
		if _, ok := p.values[a]; ok {
			axes = append(axes, a)
		}
	}

	return axes
}

// IsEmpty reports whether no axis is set.
func (p PartialPosition) IsEmpty() bool {
	return len(p.values) == 0
}

// Units returns the units of the coordinates.
func (p PartialPosition) Units() Units {
	return p.units
}

// ConvertTo returns p expressed in target units. Rotary axes are not scaled.
func (p PartialPosition) ConvertTo(target Units) PartialPosition {
	if p.units == target || p.units == UnitsUnknown || target == UnitsUnknown {
		return p
	}

	scale := p.units.ScaleTo(target)
	out := PartialPosition{values: make(map[Axis]float64, len(p.values)), units: target}
	for a, v := range p.values {
		if a.IsLinear() {
			v *= scale
		}
		out.values[a] = v
	}

	return out
}

// Words formats the set axes as G-code words, e.g. "X1.5 Y0".
func (p PartialPosition) Words() string {
	words := make([]string, 0, len(p.values))
	for _, a := range p.Axes() {
		words = append(words, string(a)+strconv.FormatFloat(p.values[a], 'f', -1, 64))
	}

	return strings.Join(words, " ")
}
