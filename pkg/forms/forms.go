// Package forms holds the clinical section schemas that make up an
// assessment. Each section is a typed payload with its own schema version,
// validated the same way on the client before a save and on the server before
// it is persisted.
package forms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hhemr/hhemr/pkg/validation"
)

// Section is implemented by every section payload.
type Section interface {
	SectionName() string
	Version() int
}

// Definition describes one section of the assessment document.
type Definition struct {
	// Name is the wire key used in save requests ("fallRisk", "otEval", ...).
	Name string `json:"name"`
	// Column is the assessment table column holding the section JSON.
	Column        string `json:"-"`
	Title         string `json:"title"`
	Discipline    string `json:"discipline"`
	SchemaVersion int    `json:"schemaVersion"`
	Scored        bool   `json:"scored"`

	newFn func() Section
}

// New returns an empty payload for the section.
func (d Definition) New() Section {
	return d.newFn()
}

var registry = map[string]Definition{}

func register(d Definition) {
	if _, dup := registry[d.Name]; dup {
		panic("forms: duplicate section " + d.Name)
	}
	d.Scored = isScorer(d.newFn())
	registry[d.Name] = d
}

func isScorer(s Section) bool {
	_, ok := s.(Scorer)
	return ok
}

func init() {
	register(Definition{Name: SectionNursingAssessment, Column: "nursing_assessment", Title: "Nursing Assessment", Discipline: "SN", SchemaVersion: 2, newFn: func() Section { return &NursingAssessment{} }})
	register(Definition{Name: SectionBodyAssessment, Column: "body_assessment", Title: "Body Systems Assessment", Discipline: "SN", SchemaVersion: 1, newFn: func() Section { return &BodyAssessment{} }})
	register(Definition{Name: SectionPsychosocial, Column: "psychosocial", Title: "Psychosocial", Discipline: "SN", SchemaVersion: 1, newFn: func() Section { return &Psychosocial{} }})
	register(Definition{Name: SectionPainAssessment, Column: "pain_assessment", Title: "Pain Assessment", Discipline: "SN", SchemaVersion: 1, newFn: func() Section { return &PainAssessment{} }})
	register(Definition{Name: SectionFallRisk, Column: "fall_risk", Title: "Fall Risk Checklist", Discipline: "SN", SchemaVersion: 1, newFn: func() Section { return &FallRisk{} }})
	register(Definition{Name: SectionNutrition, Column: "nutrition", Title: "Nutritional Health Checklist", Discipline: "SN", SchemaVersion: 1, newFn: func() Section { return &Nutrition{} }})
	register(Definition{Name: SectionOTEval, Column: "ot_eval", Title: "Occupational Therapy Evaluation", Discipline: "OT", SchemaVersion: 1, newFn: func() Section { return &OTEval{} }})
	register(Definition{Name: SectionPTEval, Column: "pt_eval", Title: "Physical Therapy Evaluation", Discipline: "PT", SchemaVersion: 1, newFn: func() Section { return &PTEval{} }})
	register(Definition{Name: SectionSTEval, Column: "st_eval", Title: "Speech Therapy Evaluation", Discipline: "ST", SchemaVersion: 1, newFn: func() Section { return &STEval{} }})
}

// Lookup returns the definition registered under name.
func Lookup(name string) (Definition, bool) {
	d, ok := registry[name]
	return d, ok
}

// All returns every section definition ordered by name.
func All() []Definition {
	out := make([]Definition, 0, len(registry))
	for _, d := range registry {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns every registered section name in sorted order.
func Names() []string {
	defs := All()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// Decode parses raw into the section's payload type and validates it.
// Unknown keys are rejected so that what is stored is exactly what the
// schema describes. Validation failures come back as validation.Errors keyed
// "<section>.<field>".
func (d Definition) Decode(raw json.RawMessage) (Section, error) {
	s := d.New()
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, validation.Errors{d.Name: "is required"}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(s); err != nil {
		return nil, validation.Errors{d.Name: fmt.Sprintf("malformed section: %v", err)}
	}
	if err := Validate(d, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks an already-typed payload against the section schema.
func Validate(d Definition, s Section) error {
	errs := validation.Errors{}
	if v := s.Version(); v < 0 || v > d.SchemaVersion {
		errs.Add(d.Name+".schemaVersion", fmt.Sprintf("unsupported version %d (latest is %d)", v, d.SchemaVersion))
	}
	if err := validation.Struct(s); err != nil {
		fieldErrs, ok := validation.AsErrors(err)
		if !ok {
			return err
		}
		errs.Merge(d.Name, fieldErrs)
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Stamp marshals a section, filling in the current schema version when the
// payload did not declare one. s is left unchanged.
func Stamp(d Definition, s Section) (json.RawMessage, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", d.Name, err)
	}
	if s.Version() != 0 {
		return b, nil
	}
	c := d.New()
	v, ok := c.(interface{ setVersion(int) })
	if !ok {
		return b, nil
	}
	if err := json.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("copy %s: %w", d.Name, err)
	}
	v.setVersion(d.SchemaVersion)
	if b, err = json.Marshal(c); err != nil {
		return nil, fmt.Errorf("marshal %s: %w", d.Name, err)
	}
	return b, nil
}

// versioned is embedded in every section to carry the schema version the
// payload was written against.
type versioned struct {
	SchemaVersion int `json:"schemaVersion,omitempty"`
}

func (v versioned) Version() int      { return v.SchemaVersion }
func (v *versioned) setVersion(n int) { v.SchemaVersion = n }
