// Package poll decides when each device's cached state is refreshed from the
// cloud and runs the per-device refresh loops.
package poll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/daybetterd/internal/daybetter"
	"github.com/dokzlo13/daybetterd/internal/device"
)

// PollError describes a failed status fetch. It is logged, never surfaced.
type PollError struct {
	Device string
	Err    error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll %s: %v", e.Device, e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}

// Fetcher fetches the current status of a device.
type Fetcher interface {
	DeviceStatus(ctx context.Context, deviceName string) (*daybetter.Status, error)
}

// Scheduler owns the polling state of every device and runs one loop per device.
type Scheduler struct {
	registry *device.Registry
	fetcher  Fetcher
	policy   Policy
	tick     time.Duration
	now      func() time.Time

	mu      sync.Mutex
	timings map[string]*Timing
	wake    map[string]chan struct{}

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler.
// Parameters:
//   - tick: how often each device loop evaluates IsPollDue (0 = 1s)
func NewScheduler(registry *device.Registry, fetcher Fetcher, policy Policy, tick time.Duration) *Scheduler {
	if tick == 0 {
		tick = time.Second
	}
	return &Scheduler{
		registry: registry,
		fetcher:  fetcher,
		policy:   policy,
		tick:     tick,
		now:      time.Now,
		timings:  make(map[string]*Timing),
		wake:     make(map[string]chan struct{}),
	}
}

// Policy returns the polling cadence.
func (s *Scheduler) Policy() Policy {
	return s.policy
}

// Timing returns a copy of the device's polling state.
func (s *Scheduler) Timing(name string) Timing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.timingLocked(name)
}

// IsPollDue reports whether the device should be polled at now.
func (s *Scheduler) IsPollDue(name string, now time.Time) bool {
	return s.Timing(name).IsPollDue(now, s.policy)
}

// Phase reports the device's polling phase at now.
func (s *Scheduler) Phase(name string, now time.Time) Phase {
	return s.Timing(name).Phase(now, s.policy)
}

// Touch records activity for a device, leaving suspension if needed.
func (s *Scheduler) Touch(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timingLocked(name).Touch(s.now())
}

// Arm opens the burst window after a successful control command.
func (s *Scheduler) Arm(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timingLocked(name).Arm(s.now(), s.policy)
}

// Refresh records activity and asks the device loop to poll right away.
func (s *Scheduler) Refresh(name string) {
	s.Touch(name)

	s.mu.Lock()
	ch := s.wakeLocked(name)
	s.mu.Unlock()

	select {
	case ch <- struct{}{}:
	default:
		// Already pending
	}
}

// Run starts one loop per registered device and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	devices := s.registry.All()
	log.Info().
		Int("devices", len(devices)).
		Dur("normal_interval", s.policy.NormalInterval).
		Dur("burst_interval", s.policy.BurstInterval).
		Dur("idle_timeout", s.policy.IdleTimeout).
		Msg("Poll scheduler started")

	for _, d := range devices {
		s.mu.Lock()
		s.timingLocked(d.Name())
		wake := s.wakeLocked(d.Name())
		s.mu.Unlock()

		s.wg.Add(1)
		go s.loop(ctx, d, wake)
	}

	<-ctx.Done()
	s.wg.Wait()
	log.Info().Msg("Poll scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, d *device.Device, wake <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-wake:
			s.pollAndLog(ctx, d)
		case <-ticker.C:
			now := s.now()
			s.mu.Lock()
			t := s.timingLocked(d.Name())
			t.Expire(now)
			due := t.IsPollDue(now, s.policy)
			s.mu.Unlock()

			if due {
				s.pollAndLog(ctx, d)
			}
		}
	}
}

func (s *Scheduler) pollAndLog(ctx context.Context, d *device.Device) {
	if err := s.PollOnce(ctx, d); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Str("device", d.Name()).Msg("Poll failed, keeping last known state")
	}
}

// PollOnce fetches the device status and applies it to the cache.
// On failure the cache is untouched and a *PollError is returned.
func (s *Scheduler) PollOnce(ctx context.Context, d *device.Device) error {
	if err := d.Acquire(ctx); err != nil {
		return &PollError{Device: d.Name(), Err: err}
	}
	defer d.Release()

	status, err := s.fetcher.DeviceStatus(ctx, d.Name())
	if err != nil {
		s.mu.Lock()
		s.timingLocked(d.Name()).RecordFailure(s.now())
		s.mu.Unlock()
		return &PollError{Device: d.Name(), Err: err}
	}

	snap, changed := d.Apply(PatchFromStatus(status), device.SourcePoll)

	s.mu.Lock()
	s.timingLocked(d.Name()).RecordPoll(s.now())
	s.mu.Unlock()

	if changed {
		log.Debug().
			Str("device", d.Name()).
			Bool("on", snap.IsOn).
			Int("brightness", snap.Brightness).
			Msg("Device state refreshed")
	}
	return nil
}

func (s *Scheduler) timingLocked(name string) *Timing {
	t, ok := s.timings[name]
	if !ok {
		nt := NewTiming(s.now())
		t = &nt
		s.timings[name] = t
	}
	return t
}

func (s *Scheduler) wakeLocked(name string) chan struct{} {
	ch, ok := s.wake[name]
	if !ok {
		ch = make(chan struct{}, 1)
		s.wake[name] = ch
	}
	return ch
}
