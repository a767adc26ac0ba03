package models

import "time"

// EnrollmentStatusEvent is the payload of the enrollment-status push topic.
type EnrollmentStatusEvent struct {
	InProgress bool   `json:"in_progress"`
	Complete   bool   `json:"complete"`
	Success    bool   `json:"success"`
	Result     string `json:"result,omitempty"` // e.g. "duplicate card", "hardware timeout".
}

// Terminal reports whether the event carries a final enrollment outcome.
func (e *EnrollmentStatusEvent) Terminal() bool {
	return e.Complete && !e.InProgress
}

// EnrollmentResult is the outcome of a finished enrollment session, exposed to
// the UI layer.
type EnrollmentResult struct {
	SessionID string    `json:"session_id"`
	State     string    `json:"state"` // success, failure or timed_out.
	Message   string    `json:"message,omitempty"`
	EndedAt   time.Time `json:"ended_at"`
}

// Credential is one registered access credential (e.g. an access card).
type Credential struct {
	ID        int64     `json:"id"`
	CardUID   string    `json:"card_uid"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
