package participants

import (
	"github.com/google/uuid"

	"github.com/eventpass/checkin-backend/internal/models"
)

// HistoryEntry is one event the participant registered for, with its scans.
type HistoryEntry struct {
	HistoryRow
	Attendance []models.AttendanceEvent `json:"attendance"`
}

// HistoryStats summarises a participant's history.
type HistoryStats struct {
	TotalEvents   int `json:"total_events"`
	Confirmed     int `json:"confirmed"`
	Cancelled     int `json:"cancelled"`
	Attended      int `json:"attended"`
	TotalCheckIns int `json:"total_check_ins"`
}

// History is the body of GET /participants/:id/history.
type History struct {
	Participant models.Participant `json:"participant"`
	Events      []HistoryEntry     `json:"events"`
	Stats       HistoryStats       `json:"stats"`
}

// BuildHistory joins registrations with their attendance rows and counts them.
func BuildHistory(p models.Participant, regs []HistoryRow, attendance map[uuid.UUID][]models.AttendanceEvent) History {
	h := History{Participant: p, Events: make([]HistoryEntry, 0, len(regs))}
	for _, reg := range regs {
		rows := attendance[reg.ID]
		if rows == nil {
			rows = []models.AttendanceEvent{}
		}
		h.Events = append(h.Events, HistoryEntry{HistoryRow: reg, Attendance: rows})

		h.Stats.TotalEvents++
		switch reg.Status {
		case models.RegistrationConfirmed:
			h.Stats.Confirmed++
		case models.RegistrationCancelled:
			h.Stats.Cancelled++
		case models.RegistrationAttended:
			h.Stats.Attended++
		}
		h.Stats.TotalCheckIns += len(rows)
	}
	return h
}
