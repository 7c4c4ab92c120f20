package analytics

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/eventpass/checkin-backend/internal/models"
)

// ReportRow is one registration of the event report.
type ReportRow struct {
	RegistrationID  uuid.UUID                 `json:"registration_id"`
	ParticipantName string                    `json:"participant_name"`
	Email           string                    `json:"email"`
	Company         string                    `json:"company,omitempty"`
	Status          models.RegistrationStatus `json:"status"`
	CheckIns        int                       `json:"check_ins"`
	FirstCheckIn    *time.Time                `json:"first_check_in,omitempty"`
	LastCheckOut    *time.Time                `json:"last_check_out,omitempty"`
	Present         bool                      `json:"present"`
}

// ReportStats summarises attendance for an event. Cancelled registrations are
// listed but not counted.
type ReportStats struct {
	TotalParticipants int     `json:"total_participants"`
	CheckedIn         int     `json:"checked_in"`
	CheckedOut        int     `json:"checked_out"`
	PresentNow        int     `json:"present_now"`
	PresenceRate      float64 `json:"presence_rate"`
}

// Report is the body of GET /events/:id/report.
type Report struct {
	Event models.Event `json:"event"`
	Rows  []ReportRow  `json:"rows"`
	Stats ReportStats  `json:"stats"`
}

// BuildReport folds each registration's attendance rows (oldest first) into a report.
func BuildReport(event models.Event, regs []models.RegistrationDetail, attendance map[uuid.UUID][]models.AttendanceEvent) Report {
	rep := Report{Event: event, Rows: make([]ReportRow, 0, len(regs))}
	for _, reg := range regs {
		rows := attendance[reg.ID]
		row := ReportRow{
			RegistrationID:  reg.ID,
			ParticipantName: reg.Participant.Name,
			Email:           reg.Participant.Email,
			Company:         reg.Participant.Company,
			Status:          reg.Status,
			CheckIns:        len(rows),
		}
		if len(rows) > 0 {
			first := rows[0].CheckInAt
			row.FirstCheckIn = &first
			last := rows[len(rows)-1]
			row.Present = last.Open()
			for i := len(rows) - 1; i >= 0; i-- {
				if rows[i].CheckOutAt != nil {
					out := *rows[i].CheckOutAt
					row.LastCheckOut = &out
					break
				}
			}
		}
		rep.Rows = append(rep.Rows, row)

		if reg.Status == models.RegistrationCancelled {
			continue
		}
		rep.Stats.TotalParticipants++
		if row.CheckIns > 0 {
			rep.Stats.CheckedIn++
			if row.Present {
				rep.Stats.PresentNow++
			} else {
				rep.Stats.CheckedOut++
			}
		}
	}
	if rep.Stats.TotalParticipants > 0 {
		rate := float64(rep.Stats.CheckedIn) / float64(rep.Stats.TotalParticipants) * 100
		rep.Stats.PresenceRate = math.Round(rate*10) / 10
	}
	return rep
}
