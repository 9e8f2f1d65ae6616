package models

import "time"

// Плейсхолдеры для результатов с ошибкой.
const (
	UnknownLabel  = "Status unknown"
	UnknownStatus = "Unknown"
)

// Event is a raw carrier event as reported by the provider.
type Event struct {
	Status     *string   `json:"status,omitempty"`
	OccurredAt time.Time `json:"occurrenceDatetime"`
	Milestone  string    `json:"statusMilestone"`
}

// TimelineStep is a display-ready progress entry. Milestone is fixed when the step
// is derived from its event.
type TimelineStep struct {
	Label     string    `json:"label"`
	Completed bool      `json:"completed"`
	Milestone Milestone `json:"milestone"`
}

type TrackingInfo struct {
	ID           string         `json:"id"`
	Label        string         `json:"label"`
	Status       string         `json:"status"`
	Events       []Event        `json:"events"`
	Timeline     []TimelineStep `json:"timeline"`
	URL          *string        `json:"url,omitempty"`
	HasError     bool           `json:"hasError"`
	ErrorMessage *string        `json:"errorMessage,omitempty"`
}

// ErrorInfo builds the error-flagged result for a tracking number.
func ErrorInfo(id, message string) TrackingInfo {
	if message == "" {
		message = "Unknown error"
	}
	return TrackingInfo{
		ID:           id,
		Label:        UnknownLabel,
		Status:       UnknownStatus,
		Events:       []Event{},
		Timeline:     []TimelineStep{},
		HasError:     true,
		ErrorMessage: &message,
	}
}

// ErrorText returns the error message or "" for successful results.
func (t TrackingInfo) ErrorText() string {
	if t.ErrorMessage == nil {
		return ""
	}
	return *t.ErrorMessage
}

// APIError is one entry of the provider error envelope.
type APIError struct {
	Code    string  `json:"code"`
	Message *string `json:"message,omitempty"`
}
