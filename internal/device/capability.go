package device

import "strings"

// Capability is one controllable dimension of a device.
type Capability uint8

const (
	CapSwitch Capability = 1 << iota
	CapBrightness
	CapColor
	CapColorTemp
)

// String returns the capability name.
func (c Capability) String() string {
	switch c {
	case CapSwitch:
		return "switch"
	case CapBrightness:
		return "brightness"
	case CapColor:
		return "color"
	case CapColorTemp:
		return "color_temp"
	default:
		return "unknown"
	}
}

var allCapabilities = []Capability{CapSwitch, CapBrightness, CapColor, CapColorTemp}

// Capabilities is a fixed set of capabilities, computed once at discovery.
type Capabilities uint8

// NewCapabilities builds a set from individual capabilities.
func NewCapabilities(caps ...Capability) Capabilities {
	var set Capabilities
	for _, c := range caps {
		set |= Capabilities(c)
	}
	return set
}

// Has reports whether c is in the set.
func (s Capabilities) Has(c Capability) bool {
	return s&Capabilities(c) != 0
}

// List returns the members in a stable order.
func (s Capabilities) List() []Capability {
	var out []Capability
	for _, c := range allCapabilities {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Names returns the member names in a stable order.
func (s Capabilities) Names() []string {
	list := s.List()
	names := make([]string, len(list))
	for i, c := range list {
		names[i] = c.String()
	}
	return names
}

func (s Capabilities) String() string {
	return strings.Join(s.Names(), ",")
}

// ColorMode is the primary way a light's color is expressed.
type ColorMode string

const (
	ColorModeHS         ColorMode = "hs"
	ColorModeColorTemp  ColorMode = "color_temp"
	ColorModeBrightness ColorMode = "brightness"
	ColorModeOnOff      ColorMode = "onoff"
)

// ColorMode derives the preferred color mode: HS, then color temperature, then brightness.
func (s Capabilities) ColorMode() ColorMode {
	switch {
	case s.Has(CapColor):
		return ColorModeHS
	case s.Has(CapColorTemp):
		return ColorModeColorTemp
	case s.Has(CapBrightness):
		return ColorModeBrightness
	default:
		return ColorModeOnOff
	}
}

// Kind distinguishes lights from plain switches.
type Kind string

const (
	KindLight  Kind = "light"
	KindSwitch Kind = "switch"
)
