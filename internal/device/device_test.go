package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/daybetterd/internal/convert"
	"github.com/dokzlo13/daybetterd/internal/storage/kv"
)

func boolPtr(b bool) *bool { return &b }

func intPtr(v int) *int { return &v }

func fullLight(name string) Info {
	return Info{
		Name:         name,
		DisplayName:  "Desk",
		Kind:         KindLight,
		Capabilities: NewCapabilities(CapSwitch, CapBrightness, CapColor, CapColorTemp),
	}
}

func TestCapabilities(t *testing.T) {
	caps := NewCapabilities(CapSwitch, CapColorTemp)
	assert.True(t, caps.Has(CapSwitch))
	assert.True(t, caps.Has(CapColorTemp))
	assert.False(t, caps.Has(CapColor))
	assert.Equal(t, []string{"switch", "color_temp"}, caps.Names())
	assert.Equal(t, ColorModeColorTemp, caps.ColorMode())

	assert.Equal(t, ColorModeHS, NewCapabilities(CapColor, CapColorTemp).ColorMode())
	assert.Equal(t, ColorModeBrightness, NewCapabilities(CapBrightness).ColorMode())
	assert.Equal(t, ColorModeOnOff, NewCapabilities(CapSwitch).ColorMode())
}

func TestNewDeviceDefaults(t *testing.T) {
	d := New(Info{Name: "x", InitialOn: true})

	assert.Equal(t, Snapshot{IsOn: true, Brightness: 255, ColorTempMireds: 300}, d.Snapshot())
	assert.True(t, d.Capabilities().Has(CapSwitch))
}

func TestApplyPartialPatch(t *testing.T) {
	d := New(fullLight("lamp"))
	d.Apply(Patch{
		Brightness:      intPtr(100),
		HS:              &convert.HS{Hue: 200, Saturation: 50},
		ColorTempMireds: intPtr(250),
	}, SourceControl)

	snap, changed := d.Apply(Patch{IsOn: boolPtr(true)}, SourcePoll)
	assert.True(t, changed)
	assert.Equal(t, Snapshot{
		IsOn:            true,
		Brightness:      100,
		HS:              convert.HS{Hue: 200, Saturation: 50},
		ColorTempMireds: 250,
	}, snap)
}

func TestApplyNormalizes(t *testing.T) {
	d := New(fullLight("lamp"))
	snap, _ := d.Apply(Patch{
		Brightness:      intPtr(400),
		HS:              &convert.HS{Hue: -30, Saturation: 140},
		ColorTempMireds: intPtr(0),
	}, SourcePoll)

	assert.Equal(t, 255, snap.Brightness)
	assert.Equal(t, convert.HS{Hue: 330, Saturation: 100}, snap.HS)
	assert.Equal(t, DefaultMireds, snap.ColorTempMireds, "zero mireds keeps previous value")
}

func TestApplyUnchanged(t *testing.T) {
	d := New(fullLight("lamp"))
	_, changed := d.Apply(Patch{}, SourcePoll)
	assert.False(t, changed)

	_, changed = d.Apply(Patch{Brightness: intPtr(255)}, SourcePoll)
	assert.False(t, changed)
	assert.True(t, d.UpdatedAt().IsZero())
}

func TestViewExposesCapableFieldsOnly(t *testing.T) {
	sw := New(Info{Name: "plug", Kind: KindSwitch, Capabilities: NewCapabilities(CapSwitch)})
	v := sw.View()
	assert.Nil(t, v.Brightness)
	assert.Nil(t, v.HS)
	assert.Nil(t, v.ColorTempMireds)
	assert.Empty(t, v.ColorMode)

	light := New(fullLight("lamp"))
	v = light.View()
	require.NotNil(t, v.Brightness)
	require.NotNil(t, v.HS)
	require.NotNil(t, v.ColorTempMireds)
	assert.Equal(t, ColorModeHS, v.ColorMode)
	assert.Equal(t, MinMireds, v.MinMireds)
	assert.Equal(t, MaxMireds, v.MaxMireds)
}

func TestAcquireSerializes(t *testing.T) {
	d := New(fullLight("lamp"))
	require.NoError(t, d.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Acquire(ctx), context.DeadlineExceeded)

	d.Release()
	require.NoError(t, d.Acquire(context.Background()))
	d.Release()
}

func TestRegistryPersistsAndRestores(t *testing.T) {
	bucket := kv.NewMemoryBucket("snapshots")

	var events []Source
	r := NewRegistry(bucket)
	r.Subscribe(func(d *Device, snap Snapshot, source Source) {
		events = append(events, source)
	})

	d := r.Add(fullLight("lamp"))
	assert.Same(t, d, r.Add(fullLight("lamp")))
	d.Apply(Patch{IsOn: boolPtr(true), Brightness: intPtr(42)}, SourceControl)
	assert.Equal(t, []Source{SourceControl}, events)

	// A new registry over the same bucket restores last-known state,
	// taking on/off from the fresh listing
	info := fullLight("lamp")
	info.InitialOn = false
	restored := NewRegistry(bucket).Add(info)
	assert.Equal(t, 42, restored.Snapshot().Brightness)
	assert.False(t, restored.Snapshot().IsOn)
}

func TestRegistryAllSorted(t *testing.T) {
	r := NewRegistry(nil)
	r.Add(fullLight("b"))
	r.Add(fullLight("a"))
	r.Add(fullLight("c"))

	var names []string
	for _, d := range r.All() {
		names = append(names, d.Name())
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
	assert.Equal(t, 3, r.Len())

	_, ok := r.Get("missing")
	assert.False(t, ok)
}
