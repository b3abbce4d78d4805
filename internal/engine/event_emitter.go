package engine

import (
	"log"
	"sync/atomic"
	"time"
)

// EventEmitter is the default Publisher: a buffered channel with a short
// grace period and drop accounting, so a slow or absent subscriber can never
// stall the control loop.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events: make(chan Event, bufferSize),
	}
}

// Publish sends an event to the events channel.
// If the channel is full, it tries with a timeout before dropping the event.
func (e *EventEmitter) Publish(event Event) {
	// Try immediate send first
	select {
	case e.events <- event:
		return
	default:
		// Channel full, try with timeout
	}

	// Give the receiver 100ms to drain before dropping
	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // Log every 10th drop to avoid spam
			log.Printf("[engine] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
// This is used by subscribers (CLI, watch TUI) to receive updates.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel.
// This should be called when the engine is stopped.
func (e *EventEmitter) Close() {
	close(e.events)
}
