package staff

import (
	"context"

	"github.com/google/uuid"

	"github.com/hhemr/hhemr/pkg/validation"
)

type Service struct {
	providers  ProviderRepository
	caregivers CaregiverRepository
	physicians PhysicianRepository
	payers     PayerRepository
}

func NewService(providers ProviderRepository, caregivers CaregiverRepository, physicians PhysicianRepository, payers PayerRepository) *Service {
	return &Service{providers: providers, caregivers: caregivers, physicians: physicians, payers: payers}
}

// -- Provider --

func (s *Service) CreateProvider(ctx context.Context, p *Provider) error {
	p.Active = true
	if err := validation.Struct(p); err != nil {
		return err
	}
	return s.providers.Create(ctx, p)
}

func (s *Service) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return s.providers.GetByID(ctx, id)
}

func (s *Service) UpdateProvider(ctx context.Context, p *Provider) error {
	if err := validation.Struct(p); err != nil {
		return err
	}
	return s.providers.Update(ctx, p)
}

func (s *Service) DeleteProvider(ctx context.Context, id uuid.UUID) error {
	return s.providers.Delete(ctx, id)
}

func (s *Service) ListProviders(ctx context.Context, limit, offset int) ([]*Provider, int, error) {
	return s.providers.List(ctx, limit, offset)
}

// -- Caregiver --

func (s *Service) CreateCaregiver(ctx context.Context, cg *Caregiver) error {
	cg.Active = true
	if err := validation.Struct(cg); err != nil {
		return err
	}
	return s.caregivers.Create(ctx, cg)
}

func (s *Service) GetCaregiver(ctx context.Context, id uuid.UUID) (*Caregiver, error) {
	return s.caregivers.GetByID(ctx, id)
}

func (s *Service) UpdateCaregiver(ctx context.Context, cg *Caregiver) error {
	if err := validation.Struct(cg); err != nil {
		return err
	}
	return s.caregivers.Update(ctx, cg)
}

func (s *Service) DeleteCaregiver(ctx context.Context, id uuid.UUID) error {
	return s.caregivers.Delete(ctx, id)
}

func (s *Service) ListCaregivers(ctx context.Context, f CaregiverFilter, limit, offset int) ([]*Caregiver, int, error) {
	if f.Discipline != "" {
		if err := validation.Var("discipline", f.Discipline, "oneof=SN LPN PT PTA OT COTA ST MSW HHA"); err != nil {
			return nil, 0, err
		}
	}
	return s.caregivers.List(ctx, f, limit, offset)
}

// -- Physician --

func (s *Service) CreatePhysician(ctx context.Context, p *Physician) error {
	if err := validation.Struct(p); err != nil {
		return err
	}
	return s.physicians.Create(ctx, p)
}

func (s *Service) GetPhysician(ctx context.Context, id uuid.UUID) (*Physician, error) {
	return s.physicians.GetByID(ctx, id)
}

func (s *Service) GetPhysicianByNPI(ctx context.Context, npi string) (*Physician, error) {
	if err := validation.Var("npi", npi, "npi"); err != nil {
		return nil, err
	}
	return s.physicians.GetByNPI(ctx, npi)
}

func (s *Service) UpdatePhysician(ctx context.Context, p *Physician) error {
	if err := validation.Struct(p); err != nil {
		return err
	}
	return s.physicians.Update(ctx, p)
}

func (s *Service) DeletePhysician(ctx context.Context, id uuid.UUID) error {
	return s.physicians.Delete(ctx, id)
}

func (s *Service) ListPhysicians(ctx context.Context, limit, offset int) ([]*Physician, int, error) {
	return s.physicians.List(ctx, limit, offset)
}

// -- Payer --

func (s *Service) CreatePayer(ctx context.Context, p *Payer) error {
	p.Active = true
	if err := validation.Struct(p); err != nil {
		return err
	}
	return s.payers.Create(ctx, p)
}

func (s *Service) GetPayer(ctx context.Context, id uuid.UUID) (*Payer, error) {
	return s.payers.GetByID(ctx, id)
}

func (s *Service) UpdatePayer(ctx context.Context, p *Payer) error {
	if err := validation.Struct(p); err != nil {
		return err
	}
	return s.payers.Update(ctx, p)
}

func (s *Service) DeletePayer(ctx context.Context, id uuid.UUID) error {
	return s.payers.Delete(ctx, id)
}

func (s *Service) ListPayers(ctx context.Context, limit, offset int) ([]*Payer, int, error) {
	return s.payers.List(ctx, limit, offset)
}
