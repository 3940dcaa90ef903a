package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/daybetterd/internal/daybetter"
	"github.com/dokzlo13/daybetterd/internal/device"
)

type fakeSource struct {
	devices []daybetter.Device
	pids    *daybetter.PIDs
	devErr  error
	pidErr  error
}

func (f *fakeSource) Devices(ctx context.Context) ([]daybetter.Device, error) {
	return f.devices, f.devErr
}

func (f *fakeSource) PIDs(ctx context.Context) (*daybetter.PIDs, error) {
	return f.pids, f.pidErr
}

func listing() []daybetter.Device {
	return []daybetter.Device{
		{Name: "l1", GroupName: "Desk", MoldPID: "P021", State: 1.0, Features: []int{2, 3, 4}},
		{Name: "l2", MoldPID: "P032", State: 0.0},
		{Name: "s1", MoldPID: "S001", State: 1.0},
		{Name: "x1", MoldPID: "ZZZZ"},
	}
}

func TestDiscover(t *testing.T) {
	src := &fakeSource{devices: listing(), pids: &daybetter.PIDs{Switch: "S001,S002"}}

	infos, err := Discover(context.Background(), src, []string{"P021", "P032"})
	require.NoError(t, err)
	require.Len(t, infos, 3)

	l1 := infos[0]
	assert.Equal(t, "Desk", l1.DisplayName)
	assert.Equal(t, device.KindLight, l1.Kind)
	assert.True(t, l1.InitialOn)
	assert.Equal(t, []string{"switch", "brightness", "color", "color_temp"}, l1.Capabilities.Names())

	l2 := infos[1]
	assert.Equal(t, defaultLightName, l2.DisplayName)
	assert.False(t, l2.InitialOn)
	assert.True(t, l2.Capabilities.Has(device.CapBrightness), "featureless light is dimmable")
	assert.False(t, l2.Capabilities.Has(device.CapColor))

	s1 := infos[2]
	assert.Equal(t, device.KindSwitch, s1.Kind)
	assert.Equal(t, defaultSwitchName, s1.DisplayName)
	assert.Equal(t, []string{"switch"}, s1.Capabilities.Names())
}

func TestDiscoverWithoutPIDCatalogue(t *testing.T) {
	src := &fakeSource{devices: listing(), pidErr: errors.New("boom")}

	infos, err := Discover(context.Background(), src, []string{"P021", "P032"})
	require.NoError(t, err)
	require.Len(t, infos, 2)
	for _, info := range infos {
		assert.Equal(t, device.KindLight, info.Kind)
	}
}

func TestDiscoverVendorLightPIDs(t *testing.T) {
	src := &fakeSource{devices: listing(), pids: &daybetter.PIDs{Light: "ZZZZ"}}

	infos, err := Discover(context.Background(), src, nil)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "x1", infos[0].Name)
}

func TestDiscoverListFailure(t *testing.T) {
	src := &fakeSource{devErr: daybetter.ErrUnexpectedStatus}
	_, err := Discover(context.Background(), src, nil)
	assert.ErrorIs(t, err, daybetter.ErrUnexpectedStatus)
}

func TestLightCapabilities(t *testing.T) {
	tests := []struct {
		features []int
		want     []string
	}{
		{features: nil, want: []string{"switch", "brightness"}},
		{features: []int{4}, want: []string{"switch", "color_temp"}},
		{features: []int{3, 9}, want: []string{"switch", "color"}},
		{features: []int{2, 2}, want: []string{"switch", "brightness"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LightCapabilities(tt.features).Names(), "%v", tt.features)
	}
}
