package attendance

import (
	"fmt"
	"time"
)

// Member represents a tracked individual with attendance state.
type Member struct {
	ID           int64      `json:"id"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Active       bool       `json:"active"`
	CheckedIn    bool       `json:"checked_in"`
	TotalSeconds float64    `json:"total_seconds"`
	LastIn       *time.Time `json:"last_in,omitempty"`
	LastOut      *time.Time `json:"last_out,omitempty"`
}

// TotalHours renders the accumulated time as "5h 30m 45s".
func (m Member) TotalHours() string {
	total := int64(m.TotalSeconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}

// Operation identifies what a log entry describes.
type Operation string

const (
	OpCheckIn  Operation = "Check In"
	OpCheckOut Operation = "Check Out"
	OpReset    Operation = "Reset"
	OpNone     Operation = "None"
)

// Status classifies the outcome of a dispatch attempt.
type Status string

const (
	StatusSuccess      Status = "Success"
	StatusError        Status = "Error"
	StatusUserNotFound Status = "User Not Found"
	StatusInactiveUser Status = "Inactive User"
	StatusInvalidInput Status = "Invalid Input"
)

// LogEntry is an immutable audit record of one dispatch attempt. MemberID is
// nil when the input never resolved to a known member; Entered always keeps
// the raw input so failed attempts stay reconstructable.
type LogEntry struct {
	ID        int64     `json:"id"`
	MemberID  *int64    `json:"member_id,omitempty"`
	Entered   string    `json:"entered"`
	Operation Operation `json:"operation"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
