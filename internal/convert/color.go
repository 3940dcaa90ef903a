// Package convert translates between host color representations and DayBetter wire units.
// Every function here degrades to a default instead of failing.
package convert

import "math"

const miredScale = 1_000_000.0

// HS is a hue/saturation pair. Hue is in degrees [0, 360), saturation in percent [0, 100].
type HS struct {
	Hue        float64 `json:"hue"`
	Saturation float64 `json:"saturation"`
}

// RGB is an 8-bit channel triple.
type RGB struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// KelvinToMireds converts a color temperature in Kelvin to mireds.
// ok is false for non-positive input; callers keep their previous value.
func KelvinToMireds(kelvin int) (mireds int, ok bool) {
	if kelvin <= 0 {
		return 0, false
	}
	return int(math.Round(miredScale / float64(kelvin))), true
}

// MiredsToKelvin converts mireds to Kelvin. ok is false for non-positive input.
func MiredsToKelvin(mireds int) (kelvin int, ok bool) {
	if mireds <= 0 {
		return 0, false
	}
	return int(math.Round(miredScale / float64(mireds))), true
}

// ClampChannel limits v to the 8-bit range.
func ClampChannel(v int) int {
	return ClampInt(v, 0, 255)
}

// ClampInt limits v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RGBToHS decomposes an RGB triple into hue and saturation.
// Channels are clamped first; achromatic input yields saturation 0.
func RGBToHS(c RGB) HS {
	r := float64(ClampChannel(c.R)) / 255
	g := float64(ClampChannel(c.G)) / 255
	b := float64(ClampChannel(c.B)) / 255

	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	delta := maxC - minC

	if maxC == 0 || delta == 0 {
		return HS{}
	}

	var hue float64
	switch maxC {
	case r:
		hue = math.Mod((g-b)/delta, 6)
	case g:
		hue = (b-r)/delta + 2
	default:
		hue = (r-g)/delta + 4
	}
	hue *= 60
	if hue < 0 {
		hue += 360
	}

	return HS{
		Hue:        round3(hue),
		Saturation: round3(delta / maxC * 100),
	}
}

// HSToRGB renders a hue/saturation pair at full value into an RGB triple.
func HSToRGB(hs HS) RGB {
	h := math.Mod(hs.Hue, 360)
	if h < 0 {
		h += 360
	}
	s := math.Max(0, math.Min(hs.Saturation, 100)) / 100

	const v = 1.0
	chroma := v * s
	x := chroma * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - chroma

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = chroma, x, 0
	case h < 120:
		r, g, b = x, chroma, 0
	case h < 180:
		r, g, b = 0, chroma, x
	case h < 240:
		r, g, b = 0, x, chroma
	case h < 300:
		r, g, b = x, 0, chroma
	default:
		r, g, b = chroma, 0, x
	}

	return RGB{
		R: ClampChannel(int(math.Round((r + m) * 255))),
		G: ClampChannel(int(math.Round((g + m) * 255))),
		B: ClampChannel(int(math.Round((b + m) * 255))),
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
