// Package events provides event management functionality.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	// Optimization lifecycle events
	OptimizationStarted   EventType = "OPTIMIZATION_STARTED"
	OptimizationProgress  EventType = "OPTIMIZATION_PROGRESS"
	OptimizationCompleted EventType = "OPTIMIZATION_COMPLETED"
	OptimizationFailed    EventType = "OPTIMIZATION_FAILED"
	OptimizationCancelled EventType = "OPTIMIZATION_CANCELLED"

	// Backend events
	BackendProbed EventType = "BACKEND_PROBED"

	// Generic events
	ErrorOccurred EventType = "ERROR_OCCURRED"
)

// AllEventTypes lists every event type the bus carries, in a stable order.
// Used by stream handlers that subscribe to everything.
func AllEventTypes() []EventType {
	return []EventType{
		OptimizationStarted,
		OptimizationProgress,
		OptimizationCompleted,
		OptimizationFailed,
		OptimizationCancelled,
		BackendProbed,
		ErrorOccurred,
	}
}

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
