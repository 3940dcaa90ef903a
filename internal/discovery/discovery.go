// Package discovery classifies the account's devices into lights and switches.
package discovery

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/daybetterd/internal/daybetter"
	"github.com/dokzlo13/daybetterd/internal/device"
)

const (
	defaultLightName  = "DayBetter Light"
	defaultSwitchName = "DayBetter Switch"
)

// Source lists devices and the vendor PID catalogue.
type Source interface {
	Devices(ctx context.Context) ([]daybetter.Device, error)
	PIDs(ctx context.Context) (*daybetter.PIDs, error)
}

// Discover lists the account's devices and classifies them.
// A failed PID lookup is logged and yields no switches.
func Discover(ctx context.Context, src Source, lightPIDs []string) ([]device.Info, error) {
	devices, err := src.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	lights := make(map[string]struct{}, len(lightPIDs))
	for _, pid := range lightPIDs {
		lights[pid] = struct{}{}
	}

	var switches map[string]struct{}
	pids, err := src.PIDs(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to fetch PID catalogue, switches will not be discovered")
	} else {
		switches = pids.SwitchPIDs()
		for pid := range pids.LightPIDs() {
			lights[pid] = struct{}{}
		}
	}

	infos := Classify(devices, lights, switches)
	log.Info().
		Int("listed", len(devices)).
		Int("registered", len(infos)).
		Msg("Device discovery complete")
	return infos, nil
}

// Classify turns vendor listings into device descriptions. Lights take
// precedence over switches; devices in neither set are skipped.
func Classify(devices []daybetter.Device, lightPIDs, switchPIDs map[string]struct{}) []device.Info {
	var out []device.Info
	for _, d := range devices {
		if d.Name == "" {
			continue
		}

		if _, ok := lightPIDs[d.MoldPID]; ok {
			out = append(out, device.Info{
				Name:         d.Name,
				DisplayName:  displayName(d, defaultLightName),
				MoldPID:      d.MoldPID,
				Kind:         device.KindLight,
				Capabilities: LightCapabilities(d.Features),
				InitialOn:    d.IsOn(),
			})
			continue
		}

		if _, ok := switchPIDs[d.MoldPID]; ok {
			out = append(out, device.Info{
				Name:         d.Name,
				DisplayName:  displayName(d, defaultSwitchName),
				MoldPID:      d.MoldPID,
				Kind:         device.KindSwitch,
				Capabilities: device.NewCapabilities(device.CapSwitch),
				InitialOn:    d.IsOn(),
			})
			continue
		}

		log.Debug().Str("device", d.Name).Str("pid", d.MoldPID).Msg("Skipping device with unknown PID")
	}
	return out
}

// LightCapabilities maps vendor feature flags to a capability set.
// A light that reports no dimension is treated as dimmable.
func LightCapabilities(features []int) device.Capabilities {
	caps := []device.Capability{device.CapSwitch}
	for _, f := range features {
		switch f {
		case daybetter.FeatureBrightness:
			caps = append(caps, device.CapBrightness)
		case daybetter.FeatureColor:
			caps = append(caps, device.CapColor)
		case daybetter.FeatureColorTemp:
			caps = append(caps, device.CapColorTemp)
		}
	}
	if len(caps) == 1 {
		caps = append(caps, device.CapBrightness)
	}
	return device.NewCapabilities(caps...)
}

func displayName(d daybetter.Device, fallback string) string {
	if d.GroupName != "" {
		return d.GroupName
	}
	return fallback
}
