package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is something participants register for and are scanned into.
type Event struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	Slug              string     `json:"slug"`
	Description       string     `json:"description"`
	Location          string     `json:"location"`
	StartsAt          time.Time  `json:"starts_at"`
	EndsAt            time.Time  `json:"ends_at"`
	Capacity          *int       `json:"capacity,omitempty"`
	CreatedBy         *uuid.UUID `json:"created_by,omitempty"`
	ArchivedAt        *time.Time `json:"archived_at,omitempty"`
	RegistrationCount int        `json:"registration_count"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
