// Package device holds the locally cached view of each DayBetter device.
package device

import (
	"context"
	"sync"
	"time"

	"github.com/dokzlo13/daybetterd/internal/convert"
)

// Info describes a device as discovered. It never changes after construction.
type Info struct {
	Name         string
	DisplayName  string
	MoldPID      string
	Kind         Kind
	Capabilities Capabilities
	InitialOn    bool
}

// Source identifies who produced a state change.
type Source string

const (
	SourceControl Source = "control"
	SourcePoll    Source = "poll"
	SourceRestore Source = "restore"
)

// Device is one physical device with its cached state snapshot.
//
// turn serializes control commands and polls for the device so that an
// in-flight poll cannot overwrite an optimistic update with stale data.
type Device struct {
	info Info
	turn chan struct{}

	mu        sync.RWMutex
	snap      Snapshot
	updatedAt time.Time

	onChange func(*Device, Snapshot, Source)
}

// New creates a device with the default snapshot.
func New(info Info) *Device {
	if info.Capabilities == 0 {
		info.Capabilities = NewCapabilities(CapSwitch)
	}
	return &Device{
		info: info,
		turn: make(chan struct{}, 1),
		snap: DefaultSnapshot(info.InitialOn),
	}
}

// Info returns the immutable device description.
func (d *Device) Info() Info { return d.info }

// Name returns the vendor device name.
func (d *Device) Name() string { return d.info.Name }

// Capabilities returns the capability set.
func (d *Device) Capabilities() Capabilities { return d.info.Capabilities }

// Acquire takes the device's turn, waiting for any outstanding control or poll.
func (d *Device) Acquire(ctx context.Context) error {
	select {
	case d.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release gives the turn back.
func (d *Device) Release() {
	<-d.turn
}

// Snapshot returns a copy of the full cached state.
func (d *Device) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snap
}

// UpdatedAt returns when the snapshot last changed.
func (d *Device) UpdatedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.updatedAt
}

// Apply merges a patch into the snapshot (last write wins) and reports
// whether anything changed.
func (d *Device) Apply(p Patch, source Source) (Snapshot, bool) {
	if p.Empty() {
		return d.Snapshot(), false
	}

	d.mu.Lock()
	before := d.snap
	d.snap = p.ApplyTo(d.snap)
	after := d.snap
	changed := after != before
	if changed {
		d.updatedAt = time.Now()
	}
	notify := d.onChange
	d.mu.Unlock()

	if changed && notify != nil {
		notify(d, after, source)
	}
	return after, changed
}

// restore replaces the snapshot without notifying listeners.
func (d *Device) restore(s Snapshot) {
	d.mu.Lock()
	d.snap = s
	d.mu.Unlock()
}

// MiredsRange returns the supported color temperature range.
func (d *Device) MiredsRange() (minMireds, maxMireds int) {
	if d.info.Capabilities.Has(CapColorTemp) {
		return MinMireds, MaxMireds
	}
	return fallbackMinMireds, fallbackMaxMireds
}

// View is the consumer-facing state: only fields within the capability set are populated.
type View struct {
	Name            string      `json:"name"`
	DisplayName     string      `json:"display_name"`
	Kind            Kind        `json:"kind"`
	Capabilities    []string    `json:"capabilities"`
	ColorMode       ColorMode   `json:"color_mode,omitempty"`
	IsOn            bool        `json:"is_on"`
	Brightness      *int        `json:"brightness,omitempty"`
	HS              *convert.HS `json:"hs_color,omitempty"`
	ColorTempMireds *int        `json:"color_temp_mireds,omitempty"`
	MinMireds       int         `json:"min_mireds,omitempty"`
	MaxMireds       int         `json:"max_mireds,omitempty"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// View renders the device for consumers.
func (d *Device) View() View {
	d.mu.RLock()
	snap := d.snap
	updatedAt := d.updatedAt
	d.mu.RUnlock()

	caps := d.info.Capabilities
	v := View{
		Name:         d.info.Name,
		DisplayName:  d.info.DisplayName,
		Kind:         d.info.Kind,
		Capabilities: caps.Names(),
		IsOn:         snap.IsOn,
		UpdatedAt:    updatedAt,
	}
	if d.info.Kind == KindLight {
		v.ColorMode = caps.ColorMode()
	}
	if caps.Has(CapBrightness) {
		b := snap.Brightness
		v.Brightness = &b
	}
	if caps.Has(CapColor) {
		hs := snap.HS
		v.HS = &hs
	}
	if caps.Has(CapColorTemp) {
		m := snap.ColorTempMireds
		v.ColorTempMireds = &m
		v.MinMireds, v.MaxMireds = d.MiredsRange()
	}
	return v
}
