package assessment

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hhemr/hhemr/pkg/forms"
	"github.com/hhemr/hhemr/pkg/validation"
)

const (
	QAStatusInUse     = "INUSE"
	QAStatusApproved  = "APPROVED"
	QAStatusRejected  = "REJECTED"
	QAStatusCompleted = "COMPLETED"
)

var (
	ErrNotFound          = errors.New("assessment not found")
	ErrVersionConflict   = errors.New("assessment was modified by another session")
	ErrInvalidTransition = errors.New("qa status transition not allowed")
)

// Assessment is the per-visit clinical record. Each registered section is a
// separate JSON column; Sections is keyed by section name and only holds the
// sections that have been saved.
type Assessment struct {
	ID                uuid.UUID                  `json:"id"`
	PatientScheduleID uuid.UUID                  `json:"patientScheduleId"`
	PatientID         *uuid.UUID                 `json:"patientId,omitempty"`
	CaregiverID       uuid.UUID                  `json:"caregiverId"`
	ProviderID        uuid.UUID                  `json:"providerId"`
	Sections          map[string]json.RawMessage `json:"-"`
	QAStatus          string                     `json:"qaStatus" validate:"required,oneof=INUSE APPROVED REJECTED COMPLETED"`
	QAComment         *string                    `json:"qaComment,omitempty" validate:"omitempty,max=2000"`
	QAReviewedBy      *string                    `json:"qaReviewedBy,omitempty"`
	QAReviewedAt      *time.Time                 `json:"qaReviewedAt,omitempty"`
	VisitDate         *time.Time                 `json:"visitDate,omitempty"`
	TimeIn            *string                    `json:"timeIn,omitempty" validate:"omitempty,hhmm"`
	TimeOut           *string                    `json:"timeOut,omitempty" validate:"omitempty,hhmm"`
	VersionID         int                        `json:"versionId"`
	CreatedAt         time.Time                  `json:"createdAt"`
	UpdatedAt         time.Time                  `json:"updatedAt"`
	// SectionVersions maps each saved section to the record version that
	// last wrote it.
	SectionVersions map[string]int `json:"sectionVersions,omitempty"`
	// Scores is recomputed on every read and never stored.
	Scores []forms.Score `json:"scores,omitempty"`
}

// MarshalJSON writes saved sections as top-level keys, the same shape the
// save endpoint accepts.
func (a Assessment) MarshalJSON() ([]byte, error) {
	type plain Assessment
	base, err := json.Marshal(plain(a))
	if err != nil || len(a.Sections) == 0 {
		return base, err
	}
	out := make(map[string]json.RawMessage, 20)
	if err := json.Unmarshal(base, &out); err != nil {
		return nil, err
	}
	for name, raw := range a.Sections {
		out[name] = raw
	}
	return json.Marshal(out)
}

// Stale reports whether a write of sections made by a caller that last saw
// version expected would overwrite a newer save of one of those sections.
// Saves of other sections and QA transitions in between do not count.
// expected 0 never conflicts.
func (a *Assessment) Stale(expected int, sections []string) bool {
	if expected == 0 {
		return false
	}
	if expected > a.VersionID {
		return true
	}
	for _, name := range sections {
		if a.SectionVersions[name] > expected {
			return true
		}
	}
	return false
}

// SectionNames lists the saved sections in sorted order.
func (a *Assessment) SectionNames() []string {
	names := make([]string, 0, len(a.Sections))
	for n := range a.Sections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SaveRequest is the body of POST /assessments. Any top-level key naming a
// registered section is collected into Sections.
type SaveRequest struct {
	ID                *uuid.UUID `json:"id,omitempty"`
	PatientScheduleID uuid.UUID  `json:"patientScheduleId" validate:"required"`
	PatientID         *uuid.UUID `json:"patientId,omitempty"`
	CaregiverID       uuid.UUID  `json:"caregiverId" validate:"required"`
	ProviderID        uuid.UUID  `json:"providerId" validate:"required"`
	VisitDate         *string    `json:"visitDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	TimeIn            *string    `json:"timeIn,omitempty" validate:"omitempty,hhmm"`
	TimeOut           *string    `json:"timeOut,omitempty" validate:"omitempty,hhmm"`
	ExpectedVersion   int        `json:"expectedVersion,omitempty" validate:"gte=0"`

	Sections map[string]json.RawMessage `json:"-"`
	unknown  []string
}

var saveRequestKeys = map[string]bool{
	"id": true, "patientScheduleId": true, "patientId": true, "caregiverId": true, "providerId": true,
	"visitDate": true, "timeIn": true, "timeOut": true, "expectedVersion": true,
}

func (r *SaveRequest) UnmarshalJSON(data []byte) error {
	type plain SaveRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	p.Sections = make(map[string]json.RawMessage)
	for k, v := range all {
		switch {
		case saveRequestKeys[k]:
		case isSection(k):
			p.Sections[k] = v
		default:
			p.unknown = append(p.unknown, k)
		}
	}
	sort.Strings(p.unknown)
	*r = SaveRequest(p)
	return nil
}

func isSection(name string) bool {
	_, ok := forms.Lookup(name)
	return ok
}

// SectionNames lists the sections carried by the request in sorted order.
func (r *SaveRequest) SectionNames() []string {
	names := make([]string, 0, len(r.Sections))
	for n := range r.Sections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Write is a validated save, ready for the repository. Sections holds
// stamped section JSON keyed by section name.
type Write struct {
	ID                uuid.UUID
	PatientScheduleID uuid.UUID
	PatientID         *uuid.UUID
	CaregiverID       uuid.UUID
	ProviderID        uuid.UUID
	VisitDate         *time.Time
	TimeIn            *string
	TimeOut           *string
	Sections          map[string]json.RawMessage
	// ExpectedVersion is the record version the caller last saw; the write
	// fails if any of its sections was saved after that (see Stale). 0 writes
	// unconditionally. CreateOnly rejects the write when a record already
	// exists for the schedule.
	ExpectedVersion int
	CreateOnly      bool
}

// QAUpdate is the body of PUT /assessments/:id/qa.
type QAUpdate struct {
	ID        *uuid.UUID `json:"id,omitempty"`
	Status    string     `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	QAComment *string    `json:"qaComment,omitempty" validate:"omitempty,max=2000"`
}

// Transition is a conditional status change. The repository applies it only
// if the current status is one of From. Review transitions also overwrite
// the comment and reviewer fields.
type Transition struct {
	ID      uuid.UUID
	EventID uuid.UUID
	To      string
	From    []string
	Comment *string
	Actor   string
	Review  bool
}

// QAEvent is one row of the append-only review history.
type QAEvent struct {
	ID           uuid.UUID `json:"id"`
	AssessmentID uuid.UUID `json:"assessmentId"`
	FromStatus   string    `json:"fromStatus"`
	ToStatus     string    `json:"toStatus"`
	Comment      *string   `json:"comment,omitempty"`
	ReviewerID   string    `json:"reviewerId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Filter narrows List. Zero values are ignored.
type Filter struct {
	PatientScheduleID *uuid.UUID
	PatientID         *uuid.UUID
	CaregiverID       *uuid.UUID
	QAStatus          string
}

func (f Filter) Validate() error {
	if f.QAStatus == "" {
		return nil
	}
	switch f.QAStatus {
	case QAStatusInUse, QAStatusApproved, QAStatusRejected, QAStatusCompleted:
		return nil
	}
	return validation.Errors{"qaStatus": "must be one of INUSE APPROVED REJECTED COMPLETED"}
}
