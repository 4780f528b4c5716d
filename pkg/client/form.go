package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/hhemr/hhemr/pkg/forms"
)

// ErrReadOnly is returned by Save on a form opened for QA review.
var ErrReadOnly = errors.New("section form is read-only in review mode")

// Saver persists section writes. *Client implements it.
type Saver interface {
	SaveSections(ctx context.Context, in SaveInput) (*SaveResult, error)
}

// FormConfig opens a SectionForm on one section of one visit's assessment.
type FormConfig struct {
	Section           string
	PatientScheduleID uuid.UUID
	// PatientID is optional; the server takes the patient from the visit.
	PatientID   *uuid.UUID
	CaregiverID uuid.UUID
	ProviderID  uuid.UUID
	// AssessmentID and Version are zero for a visit with no saved record.
	AssessmentID *uuid.UUID
	Version      int
	// Saved is the section's previously saved JSON, if any.
	Saved json.RawMessage
	// QA opens the form for review; saving is disabled.
	QA bool

	// OnSaved runs after the server accepts a save.
	OnSaved func(*SaveResult)
	// Refetch reloads the parent record after a save.
	Refetch func(ctx context.Context) error
}

// SectionForm edits a single assessment section. Each save sends only this
// section with the record version the form last saw. The server rejects the
// save only if this section was saved by someone else after that version;
// saves of other sections and QA reviews in between are not conflicts.
type SectionForm struct {
	saver Saver
	def   forms.Definition
	cfg   FormConfig

	mu           sync.Mutex
	current      forms.Section
	assessmentID *uuid.UUID
	version      int
}

func NewSectionForm(saver Saver, cfg FormConfig) (*SectionForm, error) {
	def, ok := forms.Lookup(cfg.Section)
	if !ok {
		return nil, fmt.Errorf("unknown section %q", cfg.Section)
	}
	f := &SectionForm{
		saver:        saver,
		def:          def,
		cfg:          cfg,
		assessmentID: cfg.AssessmentID,
		version:      cfg.Version,
	}
	if len(cfg.Saved) > 0 && string(cfg.Saved) != "null" {
		s := def.New()
		if err := json.Unmarshal(cfg.Saved, s); err != nil {
			return nil, fmt.Errorf("decode saved %s: %w", def.Name, err)
		}
		f.current = s
	}
	return f, nil
}

// OpenSection builds a form from a fetched assessment.
func OpenSection(saver Saver, a *Assessment, section string, qa bool) (*SectionForm, error) {
	id := a.ID
	return NewSectionForm(saver, FormConfig{
		Section:           section,
		PatientScheduleID: a.PatientScheduleID,
		PatientID:         a.PatientID,
		CaregiverID:       a.CaregiverID,
		ProviderID:        a.ProviderID,
		AssessmentID:      &id,
		Version:           a.VersionID,
		Saved:             a.Sections[section],
		QA:                qa,
	})
}

// Sync adopts a refetched record: the form takes its version and the stored
// values of its section. Use it after a conflict to rebase onto the latest
// save, or from Refetch to keep the form current.
func (f *SectionForm) Sync(a *Assessment) error {
	if a == nil || a.PatientScheduleID != f.cfg.PatientScheduleID {
		return fmt.Errorf("assessment is not for schedule %s", f.cfg.PatientScheduleID)
	}
	var current forms.Section
	if raw := a.Sections[f.def.Name]; len(raw) > 0 && string(raw) != "null" {
		current = f.def.New()
		if err := json.Unmarshal(raw, current); err != nil {
			return fmt.Errorf("decode saved %s: %w", f.def.Name, err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id := a.ID
	f.assessmentID = &id
	f.version = a.VersionID
	f.current = current
	return nil
}

// Values returns the last saved payload, or nil.
func (f *SectionForm) Values() forms.Section {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *SectionForm) Version() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version
}

func (f *SectionForm) AssessmentID() *uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.assessmentID
}

// Score recomputes the checklist total from the saved values. It reports
// false for sections that are not scored or have not been saved.
func (f *SectionForm) Score() (forms.Score, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return forms.Score{}, false
	}
	return forms.ScoreOf(f.current)
}

// SaveJSON decodes and validates raw against the section schema, then saves.
func (f *SectionForm) SaveJSON(ctx context.Context, raw json.RawMessage) (*SaveResult, error) {
	s, err := f.def.Decode(raw)
	if err != nil {
		return nil, err
	}
	return f.Save(ctx, s)
}

// Save validates data and sends it. Validation failures are returned as
// validation.Errors without a network call. On any failure the form keeps
// its previous values and OnSaved does not run. A Refetch error is returned
// together with the successful result.
func (f *SectionForm) Save(ctx context.Context, data forms.Section) (*SaveResult, error) {
	if f.cfg.QA {
		return nil, ErrReadOnly
	}
	if data == nil || data.SectionName() != f.def.Name {
		return nil, fmt.Errorf("payload is not a %s section", f.def.Name)
	}
	if err := forms.Validate(f.def, data); err != nil {
		return nil, err
	}
	raw, err := forms.Stamp(f.def, data)
	if err != nil {
		return nil, err
	}
	saved := f.def.New()
	if err := json.Unmarshal(raw, saved); err != nil {
		return nil, fmt.Errorf("decode stamped %s: %w", f.def.Name, err)
	}

	f.mu.Lock()
	in := SaveInput{
		ID:                f.assessmentID,
		PatientScheduleID: f.cfg.PatientScheduleID,
		PatientID:         f.cfg.PatientID,
		CaregiverID:       f.cfg.CaregiverID,
		ProviderID:        f.cfg.ProviderID,
		ExpectedVersion:   f.version,
		Sections:          map[string]json.RawMessage{f.def.Name: raw},
	}
	f.mu.Unlock()

	res, err := f.saver.SaveSections(ctx, in)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	id := res.ID
	f.current = saved
	f.assessmentID = &id
	f.version = res.VersionID
	f.mu.Unlock()

	if f.cfg.OnSaved != nil {
		f.cfg.OnSaved(res)
	}
	if f.cfg.Refetch != nil {
		if err := f.cfg.Refetch(ctx); err != nil {
			return res, fmt.Errorf("refetch assessment: %w", err)
		}
	}
	return res, nil
}

// Review starts the QA review flow for the form's assessment. The form must
// have been opened in QA mode on a saved record.
func (f *SectionForm) Review(qa QAUpdater) (*Review, error) {
	if !f.cfg.QA {
		return nil, errors.New("section form was not opened for review")
	}
	id := f.AssessmentID()
	if id == nil {
		return nil, ErrNotFound
	}
	r := NewReview(qa, *id)
	r.Refresh = f.cfg.Refetch
	return r, nil
}
