package poll

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/daybetterd/internal/daybetter"
)

func TestPatchFromStatus(t *testing.T) {
	p := PatchFromStatus(&daybetter.Status{
		On:         1.0,
		Brightness: "128",
		R:          "ff",
		G:          0.0,
		B:          "0x00",
		Kelvin:     4000.0,
	})

	require.NotNil(t, p.IsOn)
	assert.True(t, *p.IsOn)
	require.NotNil(t, p.Brightness)
	assert.Equal(t, 128, *p.Brightness)
	require.NotNil(t, p.HS)
	assert.InDelta(t, 0, p.HS.Hue, 0.01)
	assert.InDelta(t, 100, p.HS.Saturation, 0.01)
	require.NotNil(t, p.ColorTempMireds)
	assert.Equal(t, 250, *p.ColorTempMireds)
}

func TestPatchFromStatusPartial(t *testing.T) {
	p := PatchFromStatus(&daybetter.Status{On: true})

	require.NotNil(t, p.IsOn)
	assert.Nil(t, p.Brightness)
	assert.Nil(t, p.HS)
	assert.Nil(t, p.ColorTempMireds)
}

func TestPatchFromStatusFailSoft(t *testing.T) {
	p := PatchFromStatus(&daybetter.Status{
		On:         "maybe",
		Brightness: "dim",
		R:          "ff",
		Kelvin:     0.0,
	})

	assert.True(t, p.Empty(), "unusable fields and incomplete color are skipped")
	assert.True(t, PatchFromStatus(nil).Empty())
}
