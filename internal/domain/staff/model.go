package staff

import (
	"time"

	"github.com/google/uuid"
)

const (
	DisciplineSN   = "SN"
	DisciplineLPN  = "LPN"
	DisciplinePT   = "PT"
	DisciplinePTA  = "PTA"
	DisciplineOT   = "OT"
	DisciplineCOTA = "COTA"
	DisciplineST   = "ST"
	DisciplineMSW  = "MSW"
	DisciplineHHA  = "HHA"
)

const (
	PayerMedicare    = "MEDICARE"
	PayerMedicaid    = "MEDICAID"
	PayerManagedCare = "MANAGED_CARE"
	PayerPrivate     = "PRIVATE"
	PayerSelfPay     = "SELF_PAY"
	PayerOther       = "OTHER"
)

// Provider is the home-health agency branch that employs caregivers and
// admits patients. Maps to the provider table.
type Provider struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name" validate:"required,max=200"`
	NPI       *string   `json:"npi,omitempty" validate:"omitempty,npi"`
	TaxID     *string   `json:"taxId,omitempty" validate:"omitempty,max=20"`
	Phone     *string   `json:"phone,omitempty" validate:"omitempty,max=30"`
	Address   *string   `json:"address,omitempty" validate:"omitempty,max=500"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Caregiver is a clinician who performs visits. Maps to the caregiver table.
type Caregiver struct {
	ID            uuid.UUID `json:"id"`
	ProviderID    uuid.UUID `json:"providerId" validate:"required"`
	FirstName     string    `json:"firstName" validate:"required,max=100"`
	LastName      string    `json:"lastName" validate:"required,max=100"`
	Discipline    string    `json:"discipline" validate:"required,oneof=SN LPN PT PTA OT COTA ST MSW HHA"`
	LicenseNumber *string   `json:"licenseNumber,omitempty" validate:"omitempty,max=50"`
	Email         *string   `json:"email,omitempty" validate:"omitempty,email"`
	Phone         *string   `json:"phone,omitempty" validate:"omitempty,max=30"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Physician is the patient's ordering physician. Maps to the physician table.
type Physician struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"firstName" validate:"required,max=100"`
	LastName  string    `json:"lastName" validate:"required,max=100"`
	NPI       string    `json:"npi" validate:"required,npi"`
	Phone     *string   `json:"phone,omitempty" validate:"omitempty,max=30"`
	Fax       *string   `json:"fax,omitempty" validate:"omitempty,max=30"`
	Email     *string   `json:"email,omitempty" validate:"omitempty,email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Payer is an insurance plan or program. Maps to the payer table.
type Payer struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name" validate:"required,max=200"`
	PayerType string    `json:"payerType" validate:"required,oneof=MEDICARE MEDICAID MANAGED_CARE PRIVATE SELF_PAY OTHER"`
	PayerCode *string   `json:"payerCode,omitempty" validate:"omitempty,max=50"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CaregiverFilter narrows caregiver listings. Zero values match everything.
type CaregiverFilter struct {
	ProviderID *uuid.UUID
	Discipline string
	ActiveOnly bool
}
