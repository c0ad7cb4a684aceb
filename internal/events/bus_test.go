package events

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	defer bus.Close()

	received := make(chan *Event, 10)
	bus.Subscribe(OptimizationProgress, func(event *Event) {
		received <- event
	})

	bus.Emit(OptimizationProgress, "qaoa", map[string]interface{}{
		"job_id":    "job-1",
		"iteration": 3,
	})

	select {
	case event := <-received:
		assert.Equal(t, OptimizationProgress, event.Type)
		assert.Equal(t, "qaoa", event.Module)
		assert.Equal(t, "job-1", event.Data["job_id"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_NoDeliveryForOtherTypes(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	defer bus.Close()

	received := make(chan *Event, 10)
	bus.Subscribe(OptimizationCompleted, func(event *Event) {
		received <- event
	})

	bus.Emit(OptimizationProgress, "qaoa", nil)

	select {
	case <-received:
		t.Fatal("should not receive events of other types")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_PreservesPublishOrderPerSubscription(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	const total = 50
	bus.Subscribe(OptimizationProgress, func(event *Event) {
		mu.Lock()
		got = append(got, event.Data["seq"].(string))
		if len(got) == total {
			close(done)
		}
		mu.Unlock()
	})

	for i := 0; i < total; i++ {
		bus.Emit(OptimizationProgress, "test", map[string]interface{}{
			"seq": fmt.Sprintf("%03d", i),
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for events")
	}
	bus.Close()

	for i := 0; i < total; i++ {
		assert.Equal(t, fmt.Sprintf("%03d", i), got[i])
	}
}

func TestBus_PublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	defer bus.Close()

	block := make(chan struct{})
	bus.Subscribe(OptimizationProgress, func(event *Event) {
		<-block
	})

	// Overflow the subscriber buffer; Emit must return promptly each time.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			bus.Emit(OptimizationProgress, "test", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	close(block)
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	defer bus.Close()

	received := make(chan *Event, 10)
	sub := bus.Subscribe(OptimizationProgress, func(event *Event) {
		received <- event
	})

	bus.Emit(OptimizationProgress, "test", nil)
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	bus.Unsubscribe(sub)
	bus.Emit(OptimizationProgress, "test", nil)
	select {
	case <-received:
		t.Fatal("delivery after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}

	// Repeated unsubscribe is a no-op.
	bus.Unsubscribe(sub)
	bus.Unsubscribe(nil)
}

func TestBus_EmitAfterCloseIsSafe(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	bus.Subscribe(OptimizationProgress, func(event *Event) {})
	bus.Close()

	// Must not panic or block.
	bus.Emit(OptimizationProgress, "test", nil)
}

func TestManager_EmitTyped(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	defer bus.Close()
	manager := NewManager(bus, zerolog.Nop())

	received := make(chan *Event, 1)
	bus.Subscribe(OptimizationProgress, func(event *Event) {
		received <- event
	})

	manager.EmitTyped(OptimizationProgress, "qaoa", &OptimizationProgressData{
		JobID:         "job-42",
		Iteration:     7,
		BestObjective: -1.25,
		BackendTier:   "local-simulator",
		State:         "iterating",
	})

	select {
	case event := <-received:
		typed := event.GetTypedData()
		require.NotNil(t, typed)
		data, ok := typed.(*OptimizationProgressData)
		require.True(t, ok)
		assert.Equal(t, "job-42", data.JobID)
		assert.Equal(t, 7, data.Iteration)
		assert.InDelta(t, -1.25, data.BestObjective, 1e-12)
		assert.Equal(t, "local-simulator", data.BackendTier)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestManager_EmitError(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	defer bus.Close()
	manager := NewManager(bus, zerolog.Nop())

	received := make(chan *Event, 1)
	bus.Subscribe(ErrorOccurred, func(event *Event) {
		received <- event
	})

	manager.EmitError("circuit", fmt.Errorf("backend offline"), map[string]interface{}{
		"backend": "ibm-hardware",
	})

	select {
	case event := <-received:
		typed := event.GetTypedData()
		require.NotNil(t, typed)
		data, ok := typed.(*ErrorEventData)
		require.True(t, ok)
		assert.Equal(t, "backend offline", data.Error)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}
