package models

import (
	"time"

	"github.com/google/uuid"
)

// AttendanceStatus is the state of one attendance row.
type AttendanceStatus string

const (
	AttendanceCheckedIn  AttendanceStatus = "CHECKED_IN"
	AttendanceCheckedOut AttendanceStatus = "CHECKED_OUT"
)

// AttendanceEvent is one check-in, closed in place by the matching check-out.
// IDs are monotonic so ordering by (CheckInAt, ID) is total.
type AttendanceEvent struct {
	ID             int64            `json:"id"`
	RegistrationID uuid.UUID        `json:"registration_id"`
	EventID        uuid.UUID        `json:"event_id"`
	CheckInAt      time.Time        `json:"check_in_at"`
	CheckOutAt     *time.Time       `json:"check_out_at,omitempty"`
	Status         AttendanceStatus `json:"status"`
	ScannedBy      string           `json:"scanned_by"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Open reports whether the row still awaits a check-out.
func (a *AttendanceEvent) Open() bool { return a.CheckOutAt == nil }
