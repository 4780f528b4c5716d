package scheduling

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	StatusScheduled  = "SCHEDULED"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusMissed     = "MISSED"
	StatusCancelled  = "CANCELLED"
)

const (
	VisitSOC       = "SOC"
	VisitROC       = "ROC"
	VisitRecert    = "RECERT"
	VisitRoutine   = "ROUTINE"
	VisitDischarge = "DISCHARGE"
	VisitEval      = "EVAL"
)

var (
	ErrInvalidTransition = errors.New("visit status change not allowed")
	// ErrOverlap is returned when a caregiver already has a live visit in
	// the requested window.
	ErrOverlap = errors.New("caregiver already has a visit in this window")
	ErrClosed  = errors.New("visit is closed")
)

// transitions lists the statuses a visit may move to from each status.
// COMPLETED, MISSED and CANCELLED are final.
var transitions = map[string][]string{
	StatusScheduled:  {StatusInProgress, StatusCompleted, StatusMissed, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// sourcesFor returns the statuses from which to is reachable.
func sourcesFor(to string) []string {
	var from []string
	for src, targets := range transitions {
		for _, t := range targets {
			if t == to {
				from = append(from, src)
			}
		}
	}
	return from
}

// PatientSchedule is one planned home visit. An assessment is keyed by the
// schedule it documents. Maps to the patient_schedule table.
type PatientSchedule struct {
	ID             uuid.UUID `json:"id"`
	PatientID      uuid.UUID `json:"patientId" validate:"required"`
	CaregiverID    uuid.UUID `json:"caregiverId" validate:"required"`
	ProviderID     uuid.UUID `json:"providerId" validate:"required"`
	VisitType      string    `json:"visitType" validate:"required,oneof=SOC ROC RECERT ROUTINE DISCHARGE EVAL"`
	Discipline     string    `json:"discipline" validate:"required,oneof=SN LPN PT PTA OT COTA ST MSW HHA"`
	ScheduledStart time.Time `json:"scheduledStart" validate:"required"`
	ScheduledEnd   time.Time `json:"scheduledEnd" validate:"required,gtfield=ScheduledStart"`
	Status         string    `json:"status" validate:"required,oneof=SCHEDULED IN_PROGRESS COMPLETED MISSED CANCELLED"`
	Notes          *string   `json:"notes,omitempty" validate:"omitempty,max=2000"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Live reports whether the visit still occupies its caregiver's time.
func (s *PatientSchedule) Live() bool {
	return s.Status == StatusScheduled || s.Status == StatusInProgress
}

// StatusUpdate is the body of PUT /patient-schedules/:id/status.
type StatusUpdate struct {
	Status string `json:"status" validate:"required,oneof=IN_PROGRESS COMPLETED MISSED CANCELLED"`
}

// Filter narrows schedule listings. From and To bound scheduledStart.
type Filter struct {
	PatientID   *uuid.UUID
	CaregiverID *uuid.UUID
	Status      string
	From        *time.Time
	To          *time.Time
}
