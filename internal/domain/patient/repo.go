package patient

import (
	"context"

	"github.com/google/uuid"
)

// PatientRepository defines the persistence interface for patients.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error)
}

// InsuranceRepository defines the persistence interface for patient coverage.
type InsuranceRepository interface {
	Create(ctx context.Context, ins *Insurance) error
	GetByID(ctx context.Context, id uuid.UUID) (*Insurance, error)
	Update(ctx context.Context, ins *Insurance) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Insurance, error)
}

// DischargeRepository defines the persistence interface for discharge
// summaries. Create also marks the patient DISCHARGED.
type DischargeRepository interface {
	Create(ctx context.Context, d *DischargeSummary) error
	GetByID(ctx context.Context, id uuid.UUID) (*DischargeSummary, error)
	Update(ctx context.Context, d *DischargeSummary) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*DischargeSummary, error)
}
