package steps

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(sub *Subscription) []Event {
	var out []Event
	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, evt)
		default:
			return out
		}
	}
}

func TestHub_FanOutPreservesOrder(t *testing.T) {
	h := NewHub(16)
	a := h.Subscribe()
	b := h.Subscribe()

	for i := 1; i <= 5; i++ {
		h.Publish(Event{RunID: "r", StepID: i, Status: StatusOK})
	}

	for _, sub := range []*Subscription{a, b} {
		got := drain(sub)
		require.Len(t, got, 5)
		for i, evt := range got {
			assert.Equal(t, i+1, evt.StepID)
		}
	}
	assert.Equal(t, uint64(5), h.Published())
}

func TestHub_NoReplay(t *testing.T) {
	h := NewHub(4)
	h.Publish(Event{RunID: "early", StepID: 1})

	sub := h.Subscribe()
	h.Publish(Event{RunID: "late", StepID: 1})

	got := drain(sub)
	require.Len(t, got, 1)
	assert.Equal(t, "late", got[0].RunID)
}

func TestHub_SlowObserverIsEvictedWithoutBlocking(t *testing.T) {
	h := NewHub(2)
	slow := h.Subscribe()
	fast := h.Subscribe()

	acks := make(chan Event)
	go func() {
		for evt := range fast.Events() {
			acks <- evt
		}
	}()

	var fastGot []Event
	for i := 1; i <= 10; i++ {
		published := make(chan struct{})
		go func() {
			h.Publish(Event{RunID: "r", StepID: i})
			close(published)
		}()
		select {
		case <-published:
		case <-time.After(2 * time.Second):
			t.Fatal("Publish blocked on a slow observer")
		}
		select {
		case evt := <-acks:
			fastGot = append(fastGot, evt)
		case <-time.After(2 * time.Second):
			t.Fatalf("fast observer missed event %d", i)
		}
	}

	assert.Len(t, fastGot, 10)
	assert.Equal(t, 1, h.Len())
	assert.Equal(t, uint64(1), h.Evicted())

	// The slow observer got a gap-free prefix and then a closed channel.
	var slowGot []Event
	for evt := range slow.Events() {
		slowGot = append(slowGot, evt)
	}
	require.Len(t, slowGot, 2)
	assert.Equal(t, 1, slowGot[0].StepID)
	assert.Equal(t, 2, slowGot[1].StepID)
	h.Unsubscribe(fast)
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := NewHub(4)
	sub := h.Subscribe()
	h.Unsubscribe(sub)
	h.Unsubscribe(sub)

	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, h.Len())

	h.Publish(Event{RunID: "after"})
}

func TestHub_ConcurrentChurn(t *testing.T) {
	h := NewHub(8)
	var wg sync.WaitGroup

	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				h.Publish(Event{StepID: i})
			}
		}(p)
	}
	for s := 0; s < 8; s++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				sub := h.Subscribe()
				drain(sub)
				h.Unsubscribe(sub)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, h.Len())
}

func TestHub_Close(t *testing.T) {
	h := NewHub(1)
	sub := h.Subscribe()
	h.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok)

	late := h.Subscribe()
	_, ok = <-late.Events()
	assert.False(t, ok)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusQueued, StatusRunning))
	assert.True(t, CanTransition(StatusRunning, StatusOK))
	assert.True(t, CanTransition(StatusRunning, StatusError))
	assert.False(t, CanTransition(StatusQueued, StatusOK))
	assert.False(t, CanTransition(StatusOK, StatusRunning))
	assert.False(t, CanTransition(StatusError, StatusQueued))
}

func TestNewRunID_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewRunID()
		assert.Len(t, id, 32)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
