package device

import (
	"math"

	"github.com/dokzlo13/daybetterd/internal/convert"
)

// Default snapshot values applied at device creation.
const (
	DefaultBrightness = 255
	DefaultMireds     = 300

	// Supported color temperature range for CT-capable devices.
	MinMireds = 150
	MaxMireds = 500

	// Range reported for devices without color temperature support.
	fallbackMinMireds = 153
	fallbackMaxMireds = 500
)

// Snapshot is the full locally cached state of a device.
// Every field is always defined; consumers only see capable fields via View.
type Snapshot struct {
	IsOn            bool       `json:"is_on"`
	Brightness      int        `json:"brightness"`
	HS              convert.HS `json:"hs_color"`
	ColorTempMireds int        `json:"color_temp_mireds"`
}

// DefaultSnapshot returns the creation-time snapshot.
func DefaultSnapshot(on bool) Snapshot {
	return Snapshot{
		IsOn:            on,
		Brightness:      DefaultBrightness,
		ColorTempMireds: DefaultMireds,
	}
}

// Patch is a partial update. Nil fields leave the cached value untouched.
type Patch struct {
	IsOn            *bool
	Brightness      *int
	HS              *convert.HS
	ColorTempMireds *int
}

// Empty reports whether the patch carries no fields.
func (p Patch) Empty() bool {
	return p.IsOn == nil && p.Brightness == nil && p.HS == nil && p.ColorTempMireds == nil
}

// ApplyTo returns s with the patch applied.
func (p Patch) ApplyTo(s Snapshot) Snapshot {
	if p.IsOn != nil {
		s.IsOn = *p.IsOn
	}
	if p.Brightness != nil {
		s.Brightness = convert.ClampInt(*p.Brightness, 0, 255)
	}
	if p.HS != nil {
		s.HS = normalizeHS(*p.HS)
	}
	if p.ColorTempMireds != nil && *p.ColorTempMireds > 0 {
		s.ColorTempMireds = *p.ColorTempMireds
	}
	return s
}

func normalizeHS(hs convert.HS) convert.HS {
	h := math.Mod(hs.Hue, 360)
	if h < 0 {
		h += 360
	}
	return convert.HS{
		Hue:        h,
		Saturation: math.Max(0, math.Min(hs.Saturation, 100)),
	}
}
