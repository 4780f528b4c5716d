package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hhemr/hhemr/internal/platform/db"
	"github.com/hhemr/hhemr/internal/platform/metrics"
	"github.com/hhemr/hhemr/internal/platform/websocket"
	"github.com/hhemr/hhemr/pkg/forms"
	"github.com/hhemr/hhemr/pkg/validation"
)

// Metrics is the slice of instrumentation the service reports to.
type Metrics interface {
	SectionSaved(section, outcome string)
	QATransition(status, outcome string)
	ScoreRecorded(section, risk string)
}

type nopMetrics struct{}

func (nopMetrics) SectionSaved(string, string)  {}
func (nopMetrics) QATransition(string, string)  {}
func (nopMetrics) ScoreRecorded(string, string) {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, websocket.Event) error { return nil }

type Service struct {
	repo      Repository
	publisher websocket.EventPublisher
	metrics   Metrics
	logger    zerolog.Logger
}

// NewService wires the assessment workflow. publisher and m may be nil.
func NewService(repo Repository, publisher websocket.EventPublisher, m Metrics, logger zerolog.Logger) *Service {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if m == nil {
		m = nopMetrics{}
	}
	return &Service{repo: repo, publisher: publisher, metrics: m, logger: logger}
}

// SaveSections validates every section in req and merges them into the
// assessment for req.PatientScheduleID, creating it on first save. Only the
// named sections are written and the QA status returns to INUSE.
func (s *Service) SaveSections(ctx context.Context, req *SaveRequest) (*Assessment, error) {
	w, err := s.prepare(ctx, req)
	if err != nil {
		if _, ok := validation.AsErrors(err); ok {
			s.countSaves(req.SectionNames(), metrics.OutcomeInvalid)
		}
		return nil, err
	}

	a, err := s.repo.Upsert(ctx, w)
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			s.countSaves(req.SectionNames(), metrics.OutcomeConflict)
			return nil, err
		}
		s.countSaves(req.SectionNames(), metrics.OutcomeError)
		return nil, fmt.Errorf("save assessment sections: %w", err)
	}
	s.countSaves(req.SectionNames(), metrics.OutcomeOK)

	a.Scores = Scores(a)
	for _, sc := range a.Scores {
		if _, saved := req.Sections[sc.Section]; saved {
			s.metrics.ScoreRecorded(sc.Section, sc.RiskLevel)
		}
	}

	data, _ := json.Marshal(map[string]interface{}{"sections": req.SectionNames()})
	s.publish(ctx, a, websocket.EventSectionSaved, data)
	return a, nil
}

// prepare turns a request into a repository write, collecting every
// validation failure before returning.
func (s *Service) prepare(ctx context.Context, req *SaveRequest) (*Write, error) {
	errs := validation.Errors{}
	if err := validation.Struct(req); err != nil {
		fieldErrs, ok := validation.AsErrors(err)
		if !ok {
			return nil, err
		}
		errs.Merge("", fieldErrs)
	}
	for _, k := range req.unknown {
		errs.Add(k, "unknown section")
	}
	if len(req.Sections) == 0 && len(req.unknown) == 0 {
		errs.Add("sections", "at least one section is required")
	}

	w := &Write{
		ID:                uuid.New(),
		PatientScheduleID: req.PatientScheduleID,
		PatientID:         req.PatientID,
		CaregiverID:       req.CaregiverID,
		ProviderID:        req.ProviderID,
		TimeIn:            req.TimeIn,
		TimeOut:           req.TimeOut,
		Sections:          make(map[string]json.RawMessage, len(req.Sections)),
		ExpectedVersion:   req.ExpectedVersion,
	}
	if req.VisitDate != nil {
		if d, err := time.Parse("2006-01-02", *req.VisitDate); err == nil {
			w.VisitDate = &d
		}
	}

	for _, name := range req.SectionNames() {
		def, _ := forms.Lookup(name)
		sec, err := def.Decode(req.Sections[name])
		if err != nil {
			fieldErrs, ok := validation.AsErrors(err)
			if !ok {
				return nil, err
			}
			errs.Merge("", fieldErrs)
			continue
		}
		stamped, err := forms.Stamp(def, sec)
		if err != nil {
			return nil, err
		}
		w.Sections[name] = stamped
	}
	if len(errs) > 0 {
		return nil, errs
	}

	// The patient always comes from the visit. An unknown visit is left to
	// the insert, which reports it as a reference error.
	patientID, err := s.repo.SchedulePatient(ctx, req.PatientScheduleID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load visit: %w", err)
	case req.PatientID != nil && *req.PatientID != patientID:
		return nil, validation.Errors{"patientId": "does not match the patient of the visit"}
	default:
		w.PatientID = &patientID
	}

	existing, err := s.repo.GetBySchedule(ctx, req.PatientScheduleID)
	switch {
	case errors.Is(err, ErrNotFound):
		existing = nil
	case err != nil:
		return nil, fmt.Errorf("load assessment: %w", err)
	}

	if req.ID != nil {
		if existing == nil || existing.ID != *req.ID {
			return nil, validation.Errors{"id": "does not match the assessment for patientScheduleId"}
		}
	}
	if existing == nil {
		if req.ExpectedVersion > 0 {
			return nil, ErrVersionConflict
		}
		// Two sessions creating the same visit at once must not both win.
		w.CreateOnly = len(req.Sections) > 1
		return w, nil
	}
	if len(req.Sections) > 1 && req.ExpectedVersion == 0 {
		return nil, validation.Errors{"expectedVersion": "is required when saving more than one section"}
	}
	return w, nil
}

func (s *Service) countSaves(sections []string, outcome string) {
	for _, name := range sections {
		s.metrics.SectionSaved(name, outcome)
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Scores = Scores(a)
	return a, nil
}

func (s *Service) GetBySchedule(ctx context.Context, patientScheduleID uuid.UUID) (*Assessment, error) {
	a, err := s.repo.GetBySchedule(ctx, patientScheduleID)
	if err != nil {
		return nil, err
	}
	a.Scores = Scores(a)
	return a, nil
}

// List returns assessments matching f. Filtering on qaStatus gives the QA
// review queue.
func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Assessment, int, error) {
	if err := f.Validate(); err != nil {
		return nil, 0, err
	}
	items, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for _, a := range items {
		a.Scores = Scores(a)
	}
	return items, total, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Assessment, int, error) {
	return s.List(ctx, Filter{PatientID: &patientID}, limit, offset)
}

func (s *Service) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Assessment, int, error) {
	return s.List(ctx, Filter{QAStatus: status}, limit, offset)
}

// UpdateQAStatus approves or rejects an assessment. Review is allowed from
// INUSE or COMPLETED; a reviewed assessment can only be reviewed again after
// a clinician edits it.
func (s *Service) UpdateQAStatus(ctx context.Context, id uuid.UUID, u QAUpdate, reviewer string) (*Assessment, error) {
	if err := validation.Struct(u); err != nil {
		s.metrics.QATransition(u.Status, metrics.OutcomeInvalid)
		return nil, err
	}
	if u.ID != nil && *u.ID != id {
		s.metrics.QATransition(u.Status, metrics.OutcomeInvalid)
		return nil, validation.Errors{"id": "does not match the assessment in the path"}
	}

	a, err := s.transition(ctx, Transition{
		ID:      id,
		EventID: uuid.New(),
		To:      u.Status,
		From:    []string{QAStatusInUse, QAStatusCompleted},
		Comment: u.QAComment,
		Actor:   reviewer,
		Review:  true,
	})
	switch {
	case err == nil:
		s.metrics.QATransition(u.Status, metrics.OutcomeOK)
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotFound):
		s.metrics.QATransition(u.Status, metrics.OutcomeConflict)
		return nil, err
	default:
		s.metrics.QATransition(u.Status, metrics.OutcomeError)
		return nil, fmt.Errorf("update qa status: %w", err)
	}

	s.publish(ctx, a, websocket.EventQAUpdated, nil)
	return a, nil
}

// Complete marks an in-use assessment ready for review.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, actor string) (*Assessment, error) {
	a, err := s.transition(ctx, Transition{
		ID:      id,
		EventID: uuid.New(),
		To:      QAStatusCompleted,
		From:    []string{QAStatusInUse},
		Actor:   actor,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("complete assessment: %w", err)
	}
	s.publish(ctx, a, websocket.EventCompleted, nil)
	return a, nil
}

// transition reports ErrNotFound for a missing assessment and
// ErrInvalidTransition when its current status does not allow t.
func (s *Service) transition(ctx context.Context, t Transition) (*Assessment, error) {
	current, err := s.repo.GetByID(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if !contains(t.From, current.QAStatus) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.QAStatus, t.To)
	}
	a, err := s.repo.Transition(ctx, t)
	if err != nil {
		return nil, err
	}
	a.Scores = Scores(a)
	return a, nil
}

func (s *Service) QAHistory(ctx context.Context, id uuid.UUID) ([]*QAEvent, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListQAEvents(ctx, id)
}

// publish notifies subscribers of the assessment, its visit and the QA queue.
// Delivery failures are logged; the write has already succeeded.
func (s *Service) publish(ctx context.Context, a *Assessment, eventType string, data json.RawMessage) {
	agency := db.AgencyFromContext(ctx)
	for _, topic := range []string{
		websocket.AssessmentTopic(a.ID),
		websocket.ScheduleTopic(a.PatientScheduleID),
		websocket.TopicQAQueue,
	} {
		err := s.publisher.Publish(ctx, websocket.Event{
			Type:       eventType,
			Topic:      topic,
			AgencyID:   agency,
			ResourceID: a.ID.String(),
			VersionID:  a.VersionID,
			Data:       data,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("topic", topic).Str("assessment_id", a.ID.String()).Msg("publish event")
		}
	}
}

// Scores recomputes every scored section of a. Stored sections are decoded
// leniently: data written against an older schema still scores.
func Scores(a *Assessment) []forms.Score {
	var out []forms.Score
	for _, name := range a.SectionNames() {
		def, ok := forms.Lookup(name)
		if !ok || !def.Scored {
			continue
		}
		sec := def.New()
		if err := json.Unmarshal(a.Sections[name], sec); err != nil {
			continue
		}
		if sc, ok := forms.ScoreOf(sec); ok {
			out = append(out, sc)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
