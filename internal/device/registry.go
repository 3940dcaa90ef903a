package device

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/daybetterd/internal/storage/kv"
)

// Listener is notified after every snapshot change.
type Listener func(d *Device, snap Snapshot, source Source)

// Registry holds all devices of one integration instance and persists their
// last-known snapshots.
type Registry struct {
	mu        sync.RWMutex
	devices   map[string]*Device
	store     *kv.Typed[Snapshot]
	listeners []Listener
}

// NewRegistry creates a registry. A nil bucket disables snapshot persistence.
func NewRegistry(bucket kv.Bucket) *Registry {
	r := &Registry{devices: make(map[string]*Device)}
	if bucket != nil {
		r.store = kv.NewTyped[Snapshot](bucket)
	}
	return r
}

// Subscribe registers a change listener.
func (r *Registry) Subscribe(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Add registers a device, restoring its last persisted snapshot if any.
// A device already present under the same name is returned unchanged.
func (r *Registry) Add(info Info) *Device {
	r.mu.Lock()
	if existing, ok := r.devices[info.Name]; ok {
		r.mu.Unlock()
		return existing
	}
	d := New(info)
	d.onChange = r.changed
	r.devices[info.Name] = d
	r.mu.Unlock()

	if r.store != nil {
		snap, found, err := r.store.Get(info.Name)
		if err != nil {
			log.Warn().Err(err).Str("device", info.Name).Msg("Failed to restore device snapshot")
		} else if found {
			// The listing's on/off state is newer than anything stored
			snap.IsOn = info.InitialOn
			d.restore(snap)
		}
	}

	return d
}

// Get returns a device by name.
func (r *Registry) Get(name string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[name]
	return d, ok
}

// All returns all devices ordered by name.
func (r *Registry) All() []*Device {
	r.mu.RLock()
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Len returns the number of devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

func (r *Registry) changed(d *Device, snap Snapshot, source Source) {
	if r.store != nil {
		if err := r.store.Set(d.Name(), snap); err != nil {
			log.Warn().Err(err).Str("device", d.Name()).Msg("Failed to persist device snapshot")
		}
	}

	r.mu.RLock()
	listeners := r.listeners
	r.mu.RUnlock()

	for _, l := range listeners {
		l(d, snap, source)
	}
}
