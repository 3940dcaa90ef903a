package poll

import (
	"strings"

	"github.com/dokzlo13/daybetterd/internal/convert"
	"github.com/dokzlo13/daybetterd/internal/daybetter"
	"github.com/dokzlo13/daybetterd/internal/device"
)

// PatchFromStatus converts a status payload into a partial snapshot update.
// Absent or unusable fields are left out so the cached value is kept.
func PatchFromStatus(s *daybetter.Status) device.Patch {
	var p device.Patch
	if s == nil {
		return p
	}

	if on, ok := boolValue(s.On); ok {
		p.IsOn = &on
	}

	if s.Brightness != nil {
		if b := convert.SafeInt(s.Brightness, -1); b >= 0 {
			b = convert.ClampInt(b, 0, 255)
			p.Brightness = &b
		}
	}

	if s.HasColor() {
		hs := convert.RGBToHS(convert.RGB{
			R: convert.ChannelValue(s.R),
			G: convert.ChannelValue(s.G),
			B: convert.ChannelValue(s.B),
		})
		p.HS = &hs
	}

	if s.Kelvin != nil {
		if mireds, ok := convert.KelvinToMireds(convert.SafeInt(s.Kelvin, 0)); ok {
			p.ColorTempMireds = &mireds
		}
	}

	return p
}

func boolValue(v any) (bool, bool) {
	switch t := v.(type) {
	case nil:
		return false, false
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "on", "1":
			return true, true
		case "false", "off", "0":
			return false, true
		}
		return false, false
	default:
		n := convert.SafeInt(t, -1)
		if n < 0 {
			return false, false
		}
		return n != 0, true
	}
}
