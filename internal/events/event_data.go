package events

import "encoding/json"

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// OptimizationStartedData contains data for OptimizationStarted events
type OptimizationStartedData struct {
	JobID         string `json:"job_id"`
	Assets        int    `json:"assets"`
	Budget        int    `json:"budget"`
	PreferredTier string `json:"preferred_tier"`
}

// EventType returns the event type for OptimizationStartedData
func (d *OptimizationStartedData) EventType() EventType {
	return OptimizationStarted
}

// OptimizationProgressData contains data for OptimizationProgress events.
// One event is emitted per optimizer iteration.
type OptimizationProgressData struct {
	JobID         string  `json:"job_id"`
	Iteration     int     `json:"iteration"`
	BestObjective float64 `json:"best_objective"`
	BackendTier   string  `json:"backend_tier"`
	State         string  `json:"state"`
	Message       string  `json:"message,omitempty"`
}

// EventType returns the event type for OptimizationProgressData
func (d *OptimizationProgressData) EventType() EventType {
	return OptimizationProgress
}

// OptimizationCompletedData contains data for OptimizationCompleted events
type OptimizationCompletedData struct {
	JobID          string  `json:"job_id"`
	Objective      float64 `json:"objective"`
	Iterations     int     `json:"iterations"`
	Termination    string  `json:"termination"`
	EstimatedCost  float64 `json:"estimated_cost"`
	SelectedAssets int     `json:"selected_assets"`
}

// EventType returns the event type for OptimizationCompletedData
func (d *OptimizationCompletedData) EventType() EventType {
	return OptimizationCompleted
}

// OptimizationFailedData contains data for OptimizationFailed events
type OptimizationFailedData struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason"`
}

// EventType returns the event type for OptimizationFailedData
func (d *OptimizationFailedData) EventType() EventType {
	return OptimizationFailed
}

// OptimizationCancelledData contains data for OptimizationCancelled events
type OptimizationCancelledData struct {
	JobID      string `json:"job_id"`
	Iterations int    `json:"iterations"`
	Message    string `json:"message,omitempty"`
}

// EventType returns the event type for OptimizationCancelledData
func (d *OptimizationCancelledData) EventType() EventType {
	return OptimizationCancelled
}

// BackendProbedData contains data for BackendProbed events
type BackendProbedData struct {
	BackendID string `json:"backend_id"`
	Tier      string `json:"tier"`
	Available bool   `json:"available"`
}

// EventType returns the event type for BackendProbedData
func (d *BackendProbedData) EventType() EventType {
	return BackendProbed
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// GetTypedData attempts to convert the event's Data map to typed EventData.
// Returns the typed data if conversion is successful, nil otherwise.
func (e *Event) GetTypedData() EventData {
	if e.Data == nil {
		return nil
	}

	switch e.Type {
	case OptimizationStarted:
		var data OptimizationStartedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case OptimizationProgress:
		var data OptimizationProgressData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case OptimizationCompleted:
		var data OptimizationCompletedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case OptimizationFailed:
		var data OptimizationFailedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case OptimizationCancelled:
		var data OptimizationCancelledData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case BackendProbed:
		var data BackendProbedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case ErrorOccurred:
		var data ErrorEventData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	}

	return nil
}

// convertMapToStruct converts a map[string]interface{} to a struct
func convertMapToStruct(m map[string]interface{}, v interface{}) error {
	jsonBytes, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonBytes, v)
}

// convertEventDataToMap converts typed EventData to map[string]interface{}
func convertEventDataToMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil
	}

	return result
}
