// Package control turns a desired-state request into a single vendor command
// and keeps the local cache in step with what was accepted.
package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/daybetterd/internal/convert"
	"github.com/dokzlo13/daybetterd/internal/daybetter"
	"github.com/dokzlo13/daybetterd/internal/device"
	"github.com/dokzlo13/daybetterd/internal/ledger"
)

var (
	// ErrUnknownDevice is returned when no device is registered under the name.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrEmptyRequest is returned when Desired carries no attribute.
	ErrEmptyRequest = errors.New("empty state request")
)

// ControlError is returned when the vendor did not apply a command.
// The cache is unchanged when it is returned.
type ControlError struct {
	Device  string
	Message string
	Err     error
}

func (e *ControlError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = "command rejected"
	}
	return fmt.Sprintf("control %s: %s", e.Device, msg)
}

func (e *ControlError) Unwrap() error {
	return e.Err
}

// Desired is a requested state change. Nil fields are not requested.
type Desired struct {
	On              *bool       `json:"on,omitempty"`
	Brightness      *int        `json:"brightness,omitempty"`
	HS              *convert.HS `json:"hs_color,omitempty"`
	ColorTempMireds *int        `json:"color_temp_mireds,omitempty"`
}

// Empty reports whether nothing is requested.
func (d Desired) Empty() bool {
	return d.On == nil && d.Brightness == nil && d.HS == nil && d.ColorTempMireds == nil
}

// Sender sends one control command.
type Sender interface {
	Control(ctx context.Context, cmd daybetter.Command) (*daybetter.ControlResult, error)
}

// Arming opens the burst poll window for a device.
type Arming interface {
	Arm(name string)
}

// Recorder appends to the command ledger.
type Recorder interface {
	Append(eventType ledger.EventType, commandID, device string, payload map[string]any) error
}

// Coordinator applies desired states to devices.
type Coordinator struct {
	registry *device.Registry
	sender   Sender
	arming   Arming
	recorder Recorder
	newID    func() string
}

// NewCoordinator creates a coordinator. recorder may be nil.
func NewCoordinator(registry *device.Registry, sender Sender, arming Arming, recorder Recorder) *Coordinator {
	return &Coordinator{
		registry: registry,
		sender:   sender,
		arming:   arming,
		recorder: recorder,
		newID:    uuid.NewString,
	}
}

// SetState sends the highest-priority requested attribute as one command
// (color temperature, then color, then brightness, then on/off) and, once the
// vendor accepts it, writes every requested attribute to the cache and arms
// the burst poll window.
func (c *Coordinator) SetState(ctx context.Context, name string, desired Desired) error {
	d, ok := c.registry.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, name)
	}
	if desired.Empty() {
		return ErrEmptyRequest
	}

	cmd, patch := Plan(d, desired)

	// Wait for any in-flight poll so it cannot overwrite the optimistic state
	if err := d.Acquire(ctx); err != nil {
		return err
	}
	defer d.Release()

	commandID := c.newID()
	logger := log.With().
		Str("device", name).
		Str("command_id", commandID).
		Int("type", cmd.Type).
		Logger()

	result, err := c.sender.Control(ctx, cmd)
	if err != nil {
		logger.Error().Err(err).Msg("Control command failed")
		c.record(ledger.EventControlFailed, commandID, name, cmd, err.Error())
		return &ControlError{Device: name, Err: err}
	}
	if !result.Applied() {
		logger.Error().Str("message", result.Message).Msg("Control command rejected")
		c.record(ledger.EventControlFailed, commandID, name, cmd, result.Message)
		return &ControlError{Device: name, Message: result.Message}
	}

	snap, _ := d.Apply(patch, device.SourceControl)
	c.arming.Arm(name)
	c.record(ledger.EventControlApplied, commandID, name, cmd, "")

	logger.Info().
		Bool("on", snap.IsOn).
		Int("brightness", snap.Brightness).
		Msg("Control command applied")
	return nil
}

// Plan selects the wire command for a request and the cache patch to apply
// if it succeeds. Attributes the device cannot render are dropped. Turning
// off always sends the switch command; attributes in the same request are
// cached but not sent.
func Plan(d *device.Device, desired Desired) (daybetter.Command, device.Patch) {
	name := d.Name()
	caps := d.Capabilities()

	on := desired.On == nil || *desired.On
	patch := device.Patch{IsOn: &on}

	if desired.Brightness != nil && caps.Has(device.CapBrightness) {
		b := convert.ClampInt(*desired.Brightness, 0, 255)
		patch.Brightness = &b
	}
	if desired.HS != nil && caps.Has(device.CapColor) {
		hs := *desired.HS
		patch.HS = &hs
	}
	if desired.ColorTempMireds != nil && caps.Has(device.CapColorTemp) && *desired.ColorTempMireds > 0 {
		lo, hi := d.MiredsRange()
		m := convert.ClampInt(*desired.ColorTempMireds, lo, hi)
		patch.ColorTempMireds = &m
	}

	// Off is always a plain switch command; requested attributes are still cached
	switch {
	case !on:
		return daybetter.SwitchCommand(name, false), patch
	case patch.ColorTempMireds != nil:
		kelvin, _ := convert.MiredsToKelvin(*patch.ColorTempMireds)
		return daybetter.ColorTempCommand(name, kelvin), patch
	case patch.HS != nil:
		return daybetter.ColorCommand(name, convert.HSToRGB(*patch.HS)), patch
	case patch.Brightness != nil:
		return daybetter.BrightnessCommand(name, *patch.Brightness), patch
	default:
		return daybetter.SwitchCommand(name, true), patch
	}
}

func (c *Coordinator) record(eventType ledger.EventType, commandID, name string, cmd daybetter.Command, message string) {
	if c.recorder == nil {
		return
	}
	payload := map[string]any{"type": cmd.Type}
	if message != "" {
		payload["message"] = message
	}
	if err := c.recorder.Append(eventType, commandID, name, payload); err != nil {
		log.Warn().Err(err).Str("device", name).Msg("Failed to record control command")
	}
}
