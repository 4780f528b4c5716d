package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for patient schedules.
type Repository interface {
	Create(ctx context.Context, s *PatientSchedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*PatientSchedule, error)
	Update(ctx context.Context, s *PatientSchedule) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*PatientSchedule, int, error)
	// SetStatus moves the visit to status only if it is currently in one of
	// from; otherwise it returns ErrInvalidTransition.
	SetStatus(ctx context.Context, id uuid.UUID, status string, from []string) (*PatientSchedule, error)
	// Overlapping returns the caregiver's live visits intersecting
	// [start, end), ignoring exclude.
	Overlapping(ctx context.Context, caregiverID uuid.UUID, start, end time.Time, exclude uuid.UUID) ([]*PatientSchedule, error)
}
