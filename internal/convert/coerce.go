package convert

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// SafeInt converts a loosely typed payload value to int.
// nil and unparseable values yield def.
func SafeInt(v any, def int) int {
	if v == nil {
		return def
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return n
}

// ChannelValue coerces a color channel that may arrive as a number or as a
// hex string ("ff", "0xff", "#ff"). The result is clamped to [0, 255]; any
// unparseable input yields 0.
func ChannelValue(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case string:
		return ClampChannel(parseHex(t))
	case json.Number:
		return ClampChannel(SafeInt(t.String(), 0))
	default:
		return ClampChannel(SafeInt(t, 0))
	}
}

func parseHex(s string) int {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimPrefix(s, "#")
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0
	}
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0
	}
	return int(n)
}
