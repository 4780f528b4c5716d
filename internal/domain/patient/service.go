package patient

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hhemr/hhemr/pkg/validation"
)

const dateLayout = "2006-01-02"

type Service struct {
	patients   PatientRepository
	insurance  InsuranceRepository
	discharges DischargeRepository
	now        func() time.Time
}

func NewService(patients PatientRepository, insurance InsuranceRepository, discharges DischargeRepository) *Service {
	return &Service{patients: patients, insurance: insurance, discharges: discharges, now: time.Now}
}

// -- Patient --

func (s *Service) validatePatient(p *Patient) error {
	if err := validation.Struct(p); err != nil {
		return err
	}
	dob, _ := time.Parse(dateLayout, p.DOB)
	if dob.After(s.now()) {
		return validation.Errors{"dob": "must not be in the future"}
	}
	return nil
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if p.Status == "" {
		p.Status = StatusActive
	}
	if err := s.validatePatient(p); err != nil {
		return err
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if err := s.validatePatient(p); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error) {
	if f.Status != "" {
		if err := validation.Var("status", f.Status, "oneof=ACTIVE DISCHARGED ON_HOLD PENDING"); err != nil {
			return nil, 0, err
		}
	}
	return s.patients.List(ctx, f, limit, offset)
}

// -- Insurance --

func validateInsurance(ins *Insurance) error {
	if err := validation.Struct(ins); err != nil {
		return err
	}
	// YYYY-MM-DD strings order lexically.
	if ins.EffectiveFrom != nil && ins.EffectiveTo != nil && *ins.EffectiveTo < *ins.EffectiveFrom {
		return validation.Errors{"effectiveTo": "must not be before effectiveFrom"}
	}
	return nil
}

func (s *Service) CreateInsurance(ctx context.Context, ins *Insurance) error {
	if err := validateInsurance(ins); err != nil {
		return err
	}
	return s.insurance.Create(ctx, ins)
}

func (s *Service) GetInsurance(ctx context.Context, id uuid.UUID) (*Insurance, error) {
	return s.insurance.GetByID(ctx, id)
}

func (s *Service) UpdateInsurance(ctx context.Context, ins *Insurance) error {
	if err := validateInsurance(ins); err != nil {
		return err
	}
	return s.insurance.Update(ctx, ins)
}

func (s *Service) DeleteInsurance(ctx context.Context, id uuid.UUID) error {
	return s.insurance.Delete(ctx, id)
}

func (s *Service) ListInsurance(ctx context.Context, patientID uuid.UUID) ([]*Insurance, error) {
	return s.insurance.ListByPatient(ctx, patientID)
}

// -- Discharge Summary --

// CreateDischarge records the summary and discharges the patient.
func (s *Service) CreateDischarge(ctx context.Context, d *DischargeSummary) error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	return s.discharges.Create(ctx, d)
}

func (s *Service) GetDischarge(ctx context.Context, id uuid.UUID) (*DischargeSummary, error) {
	return s.discharges.GetByID(ctx, id)
}

func (s *Service) UpdateDischarge(ctx context.Context, d *DischargeSummary) error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	return s.discharges.Update(ctx, d)
}

func (s *Service) DeleteDischarge(ctx context.Context, id uuid.UUID) error {
	return s.discharges.Delete(ctx, id)
}

func (s *Service) ListDischarges(ctx context.Context, patientID uuid.UUID) ([]*DischargeSummary, error) {
	return s.discharges.ListByPatient(ctx, patientID)
}
