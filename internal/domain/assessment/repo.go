package assessment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Upsert creates the assessment for w.PatientScheduleID or updates only
	// the section columns named in w.Sections. It returns ErrVersionConflict
	// when the stored record is Stale for w or w.CreateOnly does not hold.
	Upsert(ctx context.Context, w *Write) (*Assessment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error)
	GetBySchedule(ctx context.Context, patientScheduleID uuid.UUID) (*Assessment, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Assessment, int, error)
	// Transition applies t and records the QA event atomically. It returns
	// ErrInvalidTransition when the current status is not in t.From.
	Transition(ctx context.Context, t Transition) (*Assessment, error)
	ListQAEvents(ctx context.Context, assessmentID uuid.UUID) ([]*QAEvent, error)
	// SchedulePatient returns the patient of a scheduled visit, or
	// ErrNotFound.
	SchedulePatient(ctx context.Context, patientScheduleID uuid.UUID) (uuid.UUID, error)
}
