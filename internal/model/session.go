package model

import "time"

// SessionStatus tracks an import session through its lifecycle.
type SessionStatus string

// Session statuses.
const (
	SessionDraft     SessionStatus = "draft"
	SessionConfirmed SessionStatus = "confirmed"
	SessionProcessed SessionStatus = "processed"
	SessionCanceled  SessionStatus = "canceled"
)

// ImportSession groups the draft transactions parsed from one statement file.
type ImportSession struct {
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ID            string
	FileName      string
	Status        SessionStatus
	ImportedCount int
}
