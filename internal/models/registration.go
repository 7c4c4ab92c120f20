package models

import (
	"time"

	"github.com/google/uuid"
)

// RegistrationStatus is the lifecycle state of a registration.
type RegistrationStatus string

const (
	RegistrationConfirmed RegistrationStatus = "CONFIRMED"
	RegistrationCancelled RegistrationStatus = "CANCELLED"
	RegistrationAttended  RegistrationStatus = "ATTENDED"
)

// Registration is one participant's enrollment in one event. ScanCode is the
// token printed in the QR code; it is unique and never changes once issued.
type Registration struct {
	ID            uuid.UUID          `json:"id"`
	ParticipantID uuid.UUID          `json:"participant_id"`
	EventID       uuid.UUID          `json:"event_id"`
	ScanCode      string             `json:"scan_code"`
	Status        RegistrationStatus `json:"status"`
	RegisteredAt  time.Time          `json:"registered_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// RegistrationDetail is a registration with the participant and event fields
// shown at the scanner and on the public QR page.
type RegistrationDetail struct {
	Registration
	Participant Participant `json:"participant"`
	Event       Event       `json:"event"`
}
