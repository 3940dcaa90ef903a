package daybetter

import (
	"strings"

	"github.com/dokzlo13/daybetterd/internal/convert"
)

// Control command types understood by /hass/control.
const (
	CommandSwitch     = 1
	CommandBrightness = 2
	CommandColor      = 3
	CommandColorTemp  = 4
)

// Device feature flags reported in deviceFeatures.
const (
	FeatureBrightness = 2
	FeatureColor      = 3
	FeatureColorTemp  = 4
)

// Device is one entry of the /hass/devices listing.
type Device struct {
	Name      string `json:"deviceName"`
	GroupName string `json:"deviceGroupName"`
	MoldPID   string `json:"deviceMoldPid"`
	State     any    `json:"deviceState"`
	Features  []int  `json:"deviceFeatures"`
}

// IsOn reports the initial on/off state from the listing.
func (d Device) IsOn() bool {
	return convert.SafeInt(d.State, 0) == 1
}

// HasFeature reports whether the device advertises the given feature flag.
func (d Device) HasFeature(feature int) bool {
	for _, f := range d.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// Status is the /hass/device payload. Every field is optional and loosely
// typed: channels may be hex strings, numbers may arrive as strings.
type Status struct {
	On         any `json:"on"`
	Brightness any `json:"brightness"`
	R          any `json:"r"`
	G          any `json:"g"`
	B          any `json:"b"`
	Kelvin     any `json:"kelvin"`
}

// HasColor reports whether all three channels are present.
func (s Status) HasColor() bool {
	return s.R != nil && s.G != nil && s.B != nil
}

// Command is a single /hass/control request body. Exactly one dimension is
// populated according to Type.
type Command struct {
	DeviceName string `json:"deviceName"`
	Type       int    `json:"type"`
	On         *bool  `json:"on,omitempty"`
	Brightness *int   `json:"brightness,omitempty"`
	Red        *int   `json:"red,omitempty"`
	Green      *int   `json:"green,omitempty"`
	Blue       *int   `json:"blue,omitempty"`
	Kelvin     *int   `json:"kelvin,omitempty"`
}

// SwitchCommand builds a type 1 command.
func SwitchCommand(device string, on bool) Command {
	return Command{DeviceName: device, Type: CommandSwitch, On: &on}
}

// BrightnessCommand builds a type 2 command.
func BrightnessCommand(device string, brightness int) Command {
	return Command{DeviceName: device, Type: CommandBrightness, Brightness: &brightness}
}

// ColorCommand builds a type 3 command.
func ColorCommand(device string, rgb convert.RGB) Command {
	r, g, b := rgb.R, rgb.G, rgb.B
	return Command{DeviceName: device, Type: CommandColor, Red: &r, Green: &g, Blue: &b}
}

// ColorTempCommand builds a type 4 command.
func ColorTempCommand(device string, kelvin int) Command {
	return Command{DeviceName: device, Type: CommandColorTemp, Kelvin: &kelvin}
}

// ControlResult is the /hass/control response.
type ControlResult struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

// Applied reports whether the vendor accepted the command. An absent code
// counts as accepted; zero, false and empty values do not.
func (r ControlResult) Applied() bool {
	return truthy(r.Code, true)
}

// Credential is the token obtained from /hass/integrate.
type Credential struct {
	Token     string
	ExpiresAt int64 // Unix seconds, 0 when the service did not report one
}

// PIDs is the /hass/pids payload: comma-separated mold PIDs per device class.
type PIDs struct {
	Switch string `json:"switch"`
	Light  string `json:"light"`
}

// SwitchPIDs returns the switch PID list as a set.
func (p PIDs) SwitchPIDs() map[string]struct{} {
	return splitPIDs(p.Switch)
}

// LightPIDs returns the light PID list as a set.
func (p PIDs) LightPIDs() map[string]struct{} {
	return splitPIDs(p.Light)
}

func splitPIDs(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, pid := range strings.Split(s, ",") {
		if pid = strings.TrimSpace(pid); pid != "" {
			out[pid] = struct{}{}
		}
	}
	return out
}

type envelope[T any] struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func truthy(v any, absent bool) bool {
	switch t := v.(type) {
	case nil:
		return absent
	case bool:
		return t
	case string:
		t = strings.TrimSpace(strings.ToLower(t))
		return t != "" && t != "0" && t != "false"
	default:
		return convert.SafeInt(t, 0) != 0
	}
}
