package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/daybetterd/internal/device"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	b := NewWithConfig(2, 10)
	defer b.Close(context.Background())

	var mu sync.Mutex
	var got []string
	b.Subscribe(EventStateChanged, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.View.Name)
	})

	b.Publish(Event{Type: EventStateChanged, View: device.View{Name: "lamp"}})
	b.Publish(Event{Type: EventDeviceRegistered, View: device.View{Name: "ignored"}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"lamp"}, got)
}

func TestRegistryListenerPublishes(t *testing.T) {
	b := NewWithConfig(1, 10)
	defer b.Close(context.Background())

	events := make(chan Event, 1)
	b.Subscribe(EventStateChanged, func(e Event) { events <- e })

	r := device.NewRegistry(nil)
	r.Subscribe(b.Listener())
	d := r.Add(device.Info{Name: "plug", Kind: device.KindSwitch})

	on := true
	d.Apply(device.Patch{IsOn: &on}, device.SourcePoll)

	select {
	case e := <-events:
		assert.Equal(t, "plug", e.View.Name)
		assert.True(t, e.View.IsOn)
		assert.Equal(t, device.SourcePoll, e.Source)
		assert.False(t, e.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestHandlerPanicDoesNotKillWorker(t *testing.T) {
	b := NewWithConfig(1, 10)
	defer b.Close(context.Background())

	done := make(chan struct{})
	calls := 0
	b.Subscribe(EventStateChanged, func(e Event) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		close(done)
	})

	b.Publish(Event{Type: EventStateChanged})
	b.Publish(Event{Type: EventStateChanged})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive panic")
	}
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	b := NewWithConfig(1, 1)
	b.Close(context.Background())
	b.Close(context.Background())

	assert.NotPanics(t, func() {
		b.Subscribe(EventStateChanged, func(Event) {})
		b.Publish(Event{Type: EventStateChanged})
	})
}
