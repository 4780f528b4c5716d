package staff

import (
	"context"

	"github.com/google/uuid"
)

// ProviderRepository defines the persistence interface for providers.
type ProviderRepository interface {
	Create(ctx context.Context, p *Provider) error
	GetByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	Update(ctx context.Context, p *Provider) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Provider, int, error)
}

// CaregiverRepository defines the persistence interface for caregivers.
type CaregiverRepository interface {
	Create(ctx context.Context, cg *Caregiver) error
	GetByID(ctx context.Context, id uuid.UUID) (*Caregiver, error)
	Update(ctx context.Context, cg *Caregiver) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f CaregiverFilter, limit, offset int) ([]*Caregiver, int, error)
}

// PhysicianRepository defines the persistence interface for physicians.
type PhysicianRepository interface {
	Create(ctx context.Context, p *Physician) error
	GetByID(ctx context.Context, id uuid.UUID) (*Physician, error)
	GetByNPI(ctx context.Context, npi string) (*Physician, error)
	Update(ctx context.Context, p *Physician) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Physician, int, error)
}

// PayerRepository defines the persistence interface for payers.
type PayerRepository interface {
	Create(ctx context.Context, p *Payer) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payer, error)
	Update(ctx context.Context, p *Payer) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Payer, int, error)
}
