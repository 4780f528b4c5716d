package patient

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	StatusActive     = "ACTIVE"
	StatusDischarged = "DISCHARGED"
	StatusOnHold     = "ON_HOLD"
	StatusPending    = "PENDING"
)

const (
	ReasonGoalsMet       = "GOALS_MET"
	ReasonHospitalized   = "HOSPITALIZED"
	ReasonTransferred    = "TRANSFERRED"
	ReasonMoved          = "MOVED"
	ReasonDeceased       = "DECEASED"
	ReasonPatientRequest = "PATIENT_REQUEST"
	ReasonOther          = "OTHER"
)

// Patient maps to the patient table. Dates travel as YYYY-MM-DD strings.
type Patient struct {
	ID          uuid.UUID  `json:"id"`
	ProviderID  uuid.UUID  `json:"providerId" validate:"required"`
	MRN         string     `json:"mrn" validate:"required,max=50"`
	FirstName   string     `json:"firstName" validate:"required,max=100"`
	LastName    string     `json:"lastName" validate:"required,max=100"`
	DOB         string     `json:"dob" validate:"required,datetime=2006-01-02"`
	Gender      string     `json:"gender" validate:"required,oneof=MALE FEMALE OTHER UNKNOWN"`
	Phone       *string    `json:"phone,omitempty" validate:"omitempty,max=30"`
	Address     *string    `json:"address,omitempty" validate:"omitempty,max=500"`
	PhysicianID *uuid.UUID `json:"physicianId,omitempty"`
	Status      string     `json:"status" validate:"required,oneof=ACTIVE DISCHARGED ON_HOLD PENDING"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Insurance maps to the patient_insurance table. Priority 1 is primary.
type Insurance struct {
	ID            uuid.UUID `json:"id"`
	PatientID     uuid.UUID `json:"patientId" validate:"required"`
	PayerID       uuid.UUID `json:"payerId" validate:"required"`
	MemberID      string    `json:"memberId" validate:"required,max=50"`
	GroupNumber   *string   `json:"groupNumber,omitempty" validate:"omitempty,max=50"`
	Priority      int       `json:"priority" validate:"required,min=1,max=3"`
	EffectiveFrom *string   `json:"effectiveFrom,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EffectiveTo   *string   `json:"effectiveTo,omitempty" validate:"omitempty,datetime=2006-01-02"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// DischargeSummary maps to the discharge_summary table. Summary is free-form
// JSON kept as sent.
type DischargeSummary struct {
	ID            uuid.UUID       `json:"id"`
	PatientID     uuid.UUID       `json:"patientId" validate:"required"`
	DischargeDate string          `json:"dischargeDate" validate:"required,datetime=2006-01-02"`
	Reason        string          `json:"reason" validate:"required,oneof=GOALS_MET HOSPITALIZED TRANSFERRED MOVED DECEASED PATIENT_REQUEST OTHER"`
	Summary       json.RawMessage `json:"summary,omitempty" validate:"omitempty,jsonvalue"`
	PhysicianID   *uuid.UUID      `json:"physicianId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Filter narrows patient listings. Query matches name or MRN by substring.
type Filter struct {
	ProviderID *uuid.UUID
	Status     string
	Query      string
}
