package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hhemr/hhemr/internal/platform/db"
	"github.com/hhemr/hhemr/internal/platform/websocket"
	"github.com/hhemr/hhemr/pkg/validation"
)

// -- Mock Repository --

type mockRepo struct {
	mu        sync.Mutex
	records   map[uuid.UUID]*Assessment
	events    []*QAEvent
	schedules map[uuid.UUID]uuid.UUID
	failGet   error
}

func newMockRepo() *mockRepo {
	return &mockRepo{records: make(map[uuid.UUID]*Assessment), schedules: make(map[uuid.UUID]uuid.UUID)}
}

func clone(a *Assessment) *Assessment {
	cp := *a
	cp.Sections = make(map[string]json.RawMessage, len(a.Sections))
	for k, v := range a.Sections {
		cp.Sections[k] = v
	}
	cp.SectionVersions = make(map[string]int, len(a.SectionVersions))
	for k, v := range a.SectionVersions {
		cp.SectionVersions[k] = v
	}
	return &cp
}

func (m *mockRepo) bySchedule(id uuid.UUID) *Assessment {
	for _, a := range m.records {
		if a.PatientScheduleID == id {
			return a
		}
	}
	return nil
}

func (m *mockRepo) Upsert(_ context.Context, w *Write) (*Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	a := m.bySchedule(w.PatientScheduleID)
	if a == nil {
		a = &Assessment{
			ID:                w.ID,
			PatientScheduleID: w.PatientScheduleID,
			QAStatus:          QAStatusInUse,
			Sections:          map[string]json.RawMessage{},
			SectionVersions:   map[string]int{},
			VersionID:         1,
			CreatedAt:         now,
		}
		m.records[a.ID] = a
	} else {
		names := make([]string, 0, len(w.Sections))
		for k := range w.Sections {
			names = append(names, k)
		}
		if w.CreateOnly || a.Stale(w.ExpectedVersion, names) {
			return nil, ErrVersionConflict
		}
		a.VersionID++
		a.QAStatus = QAStatusInUse
	}
	a.CaregiverID = w.CaregiverID
	a.ProviderID = w.ProviderID
	if w.PatientID != nil {
		a.PatientID = w.PatientID
	}
	if w.VisitDate != nil {
		a.VisitDate = w.VisitDate
	}
	if w.TimeIn != nil {
		a.TimeIn = w.TimeIn
	}
	if w.TimeOut != nil {
		a.TimeOut = w.TimeOut
	}
	for k, v := range w.Sections {
		a.Sections[k] = v
		a.SectionVersions[k] = a.VersionID
	}
	a.UpdatedAt = now
	return clone(a), nil
}

func (m *mockRepo) SchedulePatient(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.schedules[id]
	if !ok {
		return uuid.Nil, ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	a, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(a), nil
}

func (m *mockRepo) GetBySchedule(_ context.Context, id uuid.UUID) (*Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	a := m.bySchedule(id)
	if a == nil {
		return nil, ErrNotFound
	}
	return clone(a), nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Assessment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Assessment
	for _, a := range m.records {
		if f.PatientScheduleID != nil && a.PatientScheduleID != *f.PatientScheduleID {
			continue
		}
		if f.PatientID != nil && (a.PatientID == nil || *a.PatientID != *f.PatientID) {
			continue
		}
		if f.CaregiverID != nil && a.CaregiverID != *f.CaregiverID {
			continue
		}
		if f.QAStatus != "" && a.QAStatus != f.QAStatus {
			continue
		}
		out = append(out, clone(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *mockRepo) Transition(_ context.Context, t Transition) (*Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.records[t.ID]
	if !ok || !contains(t.From, a.QAStatus) {
		return nil, ErrInvalidTransition
	}
	m.events = append(m.events, &QAEvent{
		ID: t.EventID, AssessmentID: a.ID, FromStatus: a.QAStatus, ToStatus: t.To,
		Comment: t.Comment, ReviewerID: t.Actor, CreatedAt: time.Now(),
	})
	a.QAStatus = t.To
	if t.Review {
		now := time.Now()
		actor := t.Actor
		a.QAComment = t.Comment
		a.QAReviewedBy = &actor
		a.QAReviewedAt = &now
	}
	a.VersionID++
	return clone(a), nil
}

func (m *mockRepo) ListQAEvents(_ context.Context, id uuid.UUID) ([]*QAEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*QAEvent
	for _, e := range m.events {
		if e.AssessmentID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

// -- Recorders --

type recordingPublisher struct {
	mu     sync.Mutex
	events []websocket.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e websocket.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

type recordingMetrics struct {
	mu    sync.Mutex
	saves map[string]int
	qa    map[string]int
	risk  map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{saves: map[string]int{}, qa: map[string]int{}, risk: map[string]int{}}
}

func (m *recordingMetrics) SectionSaved(section, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves[section+"/"+outcome]++
}

func (m *recordingMetrics) QATransition(status, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.qa[status+"/"+outcome]++
}

func (m *recordingMetrics) ScoreRecorded(section, risk string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.risk[section+"/"+risk]++
}

type testEnv struct {
	svc     *Service
	repo    *mockRepo
	pub     *recordingPublisher
	metrics *recordingMetrics
}

func newTestEnv() *testEnv {
	env := &testEnv{repo: newMockRepo(), pub: &recordingPublisher{}, metrics: newRecordingMetrics()}
	env.svc = NewService(env.repo, env.pub, env.metrics, zerolog.Nop())
	return env
}

func newSaveRequest(scheduleID uuid.UUID, sections map[string]string) *SaveRequest {
	req := &SaveRequest{
		PatientScheduleID: scheduleID,
		CaregiverID:       uuid.New(),
		ProviderID:        uuid.New(),
		Sections:          map[string]json.RawMessage{},
	}
	for k, v := range sections {
		req.Sections[k] = json.RawMessage(v)
	}
	return req
}

const (
	fallRiskJSON  = `{"historyOfFalls":true,"polypharmacy":true,"age65OrOlder":true}`
	nutritionJSON = `{"doesNotHaveMoney":true,"eatsAlone":true}`
	painJSON      = `{"hasPain":true,"score":6,"location":"left knee"}`
)

// -- Tests --

func TestSaveSections_CreatesAssessment(t *testing.T) {
	env := newTestEnv()
	scheduleID := uuid.New()
	ctx := db.WithAgency(context.Background(), "north")

	a, err := env.svc.SaveSections(ctx, newSaveRequest(scheduleID, map[string]string{"fallRisk": fallRiskJSON}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID == uuid.Nil || a.PatientScheduleID != scheduleID {
		t.Fatalf("unexpected assessment %+v", a)
	}
	if a.VersionID != 1 || a.QAStatus != QAStatusInUse {
		t.Errorf("expected version 1 INUSE, got %d %s", a.VersionID, a.QAStatus)
	}

	var stored map[string]interface{}
	if err := json.Unmarshal(a.Sections["fallRisk"], &stored); err != nil {
		t.Fatalf("stored section is not JSON: %v", err)
	}
	if stored["schemaVersion"] != float64(1) || stored["historyOfFalls"] != true {
		t.Errorf("expected stamped section, got %v", stored)
	}

	if len(a.Scores) != 1 || a.Scores[0].Total != 6 || a.Scores[0].RiskLevel != "MODERATE" {
		t.Errorf("unexpected scores %+v", a.Scores)
	}
	if env.metrics.saves["fallRisk/ok"] != 1 || env.metrics.risk["fallRisk/MODERATE"] != 1 {
		t.Errorf("unexpected metrics %v %v", env.metrics.saves, env.metrics.risk)
	}

	if len(env.pub.events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(env.pub.events))
	}
	topics := map[string]bool{}
	for _, e := range env.pub.events {
		topics[e.Topic] = true
		if e.Type != websocket.EventSectionSaved || e.AgencyID != "north" || e.VersionID != 1 {
			t.Errorf("unexpected event %+v", e)
		}
	}
	for _, want := range []string{websocket.AssessmentTopic(a.ID), websocket.ScheduleTopic(scheduleID), websocket.TopicQAQueue} {
		if !topics[want] {
			t.Errorf("missing event on %s", want)
		}
	}
}

func TestSaveSections_PreservesSiblingSections(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	scheduleID := uuid.New()

	if _, err := env.svc.SaveSections(ctx, newSaveRequest(scheduleID, map[string]string{"fallRisk": fallRiskJSON})); err != nil {
		t.Fatalf("first save: %v", err)
	}
	a, err := env.svc.SaveSections(ctx, newSaveRequest(scheduleID, map[string]string{"nutrition": nutritionJSON}))
	if err != nil {
		t.Fatalf("second save: %v", err)
	}

	if _, ok := a.Sections["fallRisk"]; !ok {
		t.Error("fallRisk was lost by the nutrition save")
	}
	if _, ok := a.Sections["nutrition"]; !ok {
		t.Error("nutrition was not saved")
	}
	if a.VersionID != 2 {
		t.Errorf("expected version 2, got %d", a.VersionID)
	}
	if len(a.Scores) != 2 {
		t.Errorf("expected two scored sections, got %+v", a.Scores)
	}
}

func TestSaveSections_RoundTrip(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	saved, err := env.svc.SaveSections(ctx, newSaveRequest(uuid.New(), map[string]string{"painAssessment": painJSON}))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := env.svc.Get(ctx, saved.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	var want, have map[string]interface{}
	_ = json.Unmarshal([]byte(painJSON), &want)
	_ = json.Unmarshal(got.Sections["painAssessment"], &have)
	for k, v := range want {
		if have[k] != v {
			t.Errorf("%s: expected %v, got %v", k, v, have[k])
		}
	}
}

func TestSaveSections_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *SaveRequest)
		field  string
	}{
		{"missing schedule", func(r *SaveRequest) { r.PatientScheduleID = uuid.Nil }, "patientScheduleId"},
		{"missing caregiver", func(r *SaveRequest) { r.CaregiverID = uuid.Nil }, "caregiverId"},
		{"missing provider", func(r *SaveRequest) { r.ProviderID = uuid.Nil }, "providerId"},
		{"bad time", func(r *SaveRequest) { v := "25:00"; r.TimeIn = &v }, "timeIn"},
		{"bad visit date", func(r *SaveRequest) { v := "03/02/2026"; r.VisitDate = &v }, "visitDate"},
		{"no sections", func(r *SaveRequest) { r.Sections = nil }, "sections"},
		{"unknown section", func(r *SaveRequest) { r.unknown = []string{"billing"} }, "billing"},
		{"invalid section", func(r *SaveRequest) { r.Sections["psychosocial"] = json.RawMessage(`{"mood":"ELATED","cognition":"ALERT"}`) }, "psychosocial.mood"},
		{"null section", func(r *SaveRequest) { r.Sections["fallRisk"] = json.RawMessage(`null`) }, "fallRisk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			req := newSaveRequest(uuid.New(), map[string]string{"fallRisk": fallRiskJSON})
			tt.mutate(req)

			_, err := env.svc.SaveSections(context.Background(), req)
			verrs, ok := validation.AsErrors(err)
			if !ok {
				t.Fatalf("expected validation errors, got %v", err)
			}
			if _, ok := verrs[tt.field]; !ok {
				t.Errorf("expected error on %s, got %v", tt.field, verrs)
			}
			if len(env.repo.records) != 0 {
				t.Error("nothing should be persisted when validation fails")
			}
			if len(env.pub.events) != 0 {
				t.Error("no event should be published when validation fails")
			}
		})
	}
}

func TestSaveSections_VersionConflict(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	scheduleID := uuid.New()

	first, err := env.svc.SaveSections(ctx, newSaveRequest(scheduleID, map[string]string{"fallRisk": fallRiskJSON}))
	if err != nil {
		t.Fatalf("first save: %v", err)
	}

	// Another session saves the same section first.
	if _, err := env.svc.SaveSections(ctx, newSaveRequest(scheduleID, map[string]string{"fallRisk": `{"age65OrOlder":true}`})); err != nil {
		t.Fatalf("second save: %v", err)
	}

	stale := newSaveRequest(scheduleID, map[string]string{"fallRisk": fallRiskJSON})
	stale.ExpectedVersion = first.VersionID
	if _, err := env.svc.SaveSections(ctx, stale); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if env.metrics.saves["fallRisk/conflict"] != 1 {
		t.Errorf("expected conflict to be counted, got %v", env.metrics.saves)
	}
}

func TestSaveSections_SiblingSaveIsNotAConflict(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	scheduleID := uuid.New()

	loaded, err := env.svc.SaveSections(ctx, newSaveRequest(scheduleID, map[string]string{"painAssessment": painJSON}))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Two sessions opened on the same version each save their own section.
	fall := newSaveRequest(scheduleID, map[string]string{"fallRisk": fallRiskJSON})
	fall.ExpectedVersion = loaded.VersionID
	if _, err := env.svc.SaveSections(ctx, fall); err != nil {
		t.Fatalf("fallRisk save: %v", err)
	}
	if _, err := env.svc.UpdateQAStatus(ctx, loaded.ID, QAUpdate{Status: QAStatusRejected}, "qa-1"); err != nil {
		t.Fatalf("review: %v", err)
	}
	nutrition := newSaveRequest(scheduleID, map[string]string{"nutrition": nutritionJSON})
	nutrition.ExpectedVersion = loaded.VersionID
	a, err := env.svc.SaveSections(ctx, nutrition)
	if err != nil {
		t.Fatalf("nutrition save after a sibling save and a review: %v", err)
	}
	if a.VersionID != 4 {
		t.Errorf("expected version 4, got %d", a.VersionID)
	}
	if a.SectionVersions["painAssessment"] != 1 || a.SectionVersions["fallRisk"] != 2 || a.SectionVersions["nutrition"] != 4 {
		t.Errorf("unexpected section versions %v", a.SectionVersions)
	}

	// A save of fallRisk by a session that has not seen version 2 is stale.
	again := newSaveRequest(scheduleID, map[string]string{"fallRisk": `{"age65OrOlder":true}`})
	again.ExpectedVersion = loaded.VersionID
	if _, err := env.svc.SaveSections(ctx, again); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestSaveSections_PatientFromVisit(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	scheduleID, patientID := uuid.New(), uuid.New()
	env.repo.schedules[scheduleID] = patientID

	a, err := env.svc.SaveSections(ctx, newSaveRequest(scheduleID, map[string]string{"fallRisk": fallRiskJSON}))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if a.PatientID == nil || *a.PatientID != patientID {
		t.Errorf("expected patientId %s from the visit, got %v", patientID, a.PatientID)
	}
	list, total, err := env.svc.ListByPatient(ctx, patientID, 20, 0)
	if err != nil || total != 1 || len(list) != 1 {
		t.Errorf("expected the assessment listed for the patient, got total=%d err=%v", total, err)
	}

	other := uuid.New()
	req := newSaveRequest(scheduleID, map[string]string{"nutrition": nutritionJSON})
	req.PatientID = &other
	_, err = env.svc.SaveSections(ctx, req)
	verrs, ok := validation.AsErrors(err)
	if !ok || verrs["patientId"] == "" {
		t.Fatalf("expected patientId error, got %v", err)
	}
}

func TestStale(t *testing.T) {
	a := &Assessment{VersionID: 5, SectionVersions: map[string]int{"fallRisk": 2, "nutrition": 5}}
	tests := []struct {
		expected int
		sections []string
		stale    bool
	}{
		{0, []string{"nutrition"}, false},
		{2, []string{"fallRisk"}, false},
		{2, []string{"painAssessment"}, false},
		{4, []string{"nutrition"}, true},
		{4, []string{"fallRisk", "nutrition"}, true},
		{5, []string{"fallRisk", "nutrition"}, false},
		{6, []string{"fallRisk"}, true},
	}
	for _, tt := range tests {
		if got := a.Stale(tt.expected, tt.sections); got != tt.stale {
			t.Errorf("Stale(%d, %v) = %v, want %v", tt.expected, tt.sections, got, tt.stale)
		}
	}
}

func TestSaveSections_ExpectedVersionOnMissingRecord(t *testing.T) {
	env := newTestEnv()
	req := newSaveRequest(uuid.New(), map[string]string{"fallRisk": fallRiskJSON})
	req.ExpectedVersion = 3
	if _, err := env.svc.SaveSections(context.Background(), req); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestSaveSections_MultiSectionNeedsVersion(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	scheduleID := uuid.New()
	both := map[string]string{"fallRisk": fallRiskJSON, "nutrition": nutritionJSON}

	created, err := env.svc.SaveSections(ctx, newSaveRequest(scheduleID, both))
	if err != nil {
		t.Fatalf("multi-section create should be allowed: %v", err)
	}

	_, err = env.svc.SaveSections(ctx, newSaveRequest(scheduleID, both))
	verrs, ok := validation.AsErrors(err)
	if !ok || verrs["expectedVersion"] == "" {
		t.Fatalf("expected expectedVersion error, got %v", err)
	}

	req := newSaveRequest(scheduleID, both)
	req.ExpectedVersion = created.VersionID
	if _, err := env.svc.SaveSections(ctx, req); err != nil {
		t.Fatalf("versioned multi-section save: %v", err)
	}
}

func TestSaveSections_IDMustMatchSchedule(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	scheduleID := uuid.New()

	a, err := env.svc.SaveSections(ctx, newSaveRequest(scheduleID, map[string]string{"fallRisk": fallRiskJSON}))
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	req := newSaveRequest(scheduleID, map[string]string{"nutrition": nutritionJSON})
	req.ID = &a.ID
	if _, err := env.svc.SaveSections(ctx, req); err != nil {
		t.Fatalf("matching id should be accepted: %v", err)
	}

	other := uuid.New()
	req = newSaveRequest(scheduleID, map[string]string{"nutrition": nutritionJSON})
	req.ID = &other
	_, err = env.svc.SaveSections(ctx, req)
	if verrs, ok := validation.AsErrors(err); !ok || verrs["id"] == "" {
		t.Fatalf("expected id error, got %v", err)
	}
}

func TestSaveSections_ReopensReviewedAssessment(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	scheduleID := uuid.New()

	a, _ := env.svc.SaveSections(ctx, newSaveRequest(scheduleID, map[string]string{"fallRisk": fallRiskJSON}))
	if _, err := env.svc.UpdateQAStatus(ctx, a.ID, QAUpdate{Status: QAStatusRejected}, "qa-1"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	edited, err := env.svc.SaveSections(ctx, newSaveRequest(scheduleID, map[string]string{"fallRisk": `{"age65OrOlder":true}`}))
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.QAStatus != QAStatusInUse {
		t.Errorf("expected edit to reopen review, got %s", edited.QAStatus)
	}
}

func TestSaveSections_RepositoryError(t *testing.T) {
	env := newTestEnv()
	env.repo.failGet = errors.New("connection reset")

	_, err := env.svc.SaveSections(context.Background(), newSaveRequest(uuid.New(), map[string]string{"fallRisk": fallRiskJSON}))
	if err == nil || errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected wrapped repository error, got %v", err)
	}
	if _, ok := validation.AsErrors(err); ok {
		t.Fatal("repository errors must not look like validation errors")
	}
}

func TestSaveSections_PublishFailureDoesNotFailSave(t *testing.T) {
	env := newTestEnv()
	env.pub.err = errors.New("hub closed")

	if _, err := env.svc.SaveSections(context.Background(), newSaveRequest(uuid.New(), map[string]string{"fallRisk": fallRiskJSON})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateQAStatus(t *testing.T) {
	tests := []struct {
		name   string
		status string
	}{
		{"approve", QAStatusApproved},
		{"reject", QAStatusRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			ctx := context.Background()
			a, _ := env.svc.SaveSections(ctx, newSaveRequest(uuid.New(), map[string]string{"fallRisk": fallRiskJSON}))
			env.pub.events = nil

			comment := "reviewed"
			got, err := env.svc.UpdateQAStatus(ctx, a.ID, QAUpdate{ID: &a.ID, Status: tt.status, QAComment: &comment}, "qa-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.QAStatus != tt.status {
				t.Errorf("expected %s, got %s", tt.status, got.QAStatus)
			}
			if got.QAComment == nil || *got.QAComment != "reviewed" {
				t.Errorf("expected comment to be stored, got %v", got.QAComment)
			}
			if got.QAReviewedBy == nil || *got.QAReviewedBy != "qa-1" {
				t.Errorf("expected reviewer qa-1, got %v", got.QAReviewedBy)
			}
			if env.metrics.qa[tt.status+"/ok"] != 1 {
				t.Errorf("expected qa metric, got %v", env.metrics.qa)
			}
			if len(env.pub.events) != 3 || env.pub.events[0].Type != websocket.EventQAUpdated {
				t.Errorf("expected qa_updated events, got %+v", env.pub.events)
			}

			history, err := env.svc.QAHistory(ctx, a.ID)
			if err != nil {
				t.Fatalf("history: %v", err)
			}
			if len(history) != 1 || history[0].FromStatus != QAStatusInUse || history[0].ToStatus != tt.status {
				t.Errorf("unexpected history %+v", history)
			}
		})
	}
}

func TestUpdateQAStatus_Invalid(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	a, _ := env.svc.SaveSections(ctx, newSaveRequest(uuid.New(), map[string]string{"fallRisk": fallRiskJSON}))

	for _, status := range []string{"", "PENDING", QAStatusInUse, QAStatusCompleted} {
		_, err := env.svc.UpdateQAStatus(ctx, a.ID, QAUpdate{Status: status}, "qa-1")
		if verrs, ok := validation.AsErrors(err); !ok || verrs["status"] == "" {
			t.Errorf("status %q: expected validation error, got %v", status, err)
		}
	}

	other := uuid.New()
	_, err := env.svc.UpdateQAStatus(ctx, a.ID, QAUpdate{ID: &other, Status: QAStatusApproved}, "qa-1")
	if verrs, ok := validation.AsErrors(err); !ok || verrs["id"] == "" {
		t.Errorf("expected id mismatch error, got %v", err)
	}

	if _, err := env.svc.UpdateQAStatus(ctx, uuid.New(), QAUpdate{Status: QAStatusApproved}, "qa-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateQAStatus_TerminalUntilEdited(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	a, _ := env.svc.SaveSections(ctx, newSaveRequest(uuid.New(), map[string]string{"fallRisk": fallRiskJSON}))

	if _, err := env.svc.UpdateQAStatus(ctx, a.ID, QAUpdate{Status: QAStatusApproved}, "qa-1"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	_, err := env.svc.UpdateQAStatus(ctx, a.ID, QAUpdate{Status: QAStatusRejected}, "qa-2")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := env.svc.Complete(ctx, a.ID, "nurse-1"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected approved assessment to refuse completion, got %v", err)
	}
}

func TestComplete(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	a, _ := env.svc.SaveSections(ctx, newSaveRequest(uuid.New(), map[string]string{"fallRisk": fallRiskJSON}))

	done, err := env.svc.Complete(ctx, a.ID, "nurse-1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.QAStatus != QAStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", done.QAStatus)
	}
	if done.QAReviewedBy != nil {
		t.Error("completion must not set a reviewer")
	}

	approved, err := env.svc.UpdateQAStatus(ctx, a.ID, QAUpdate{Status: QAStatusApproved}, "qa-1")
	if err != nil {
		t.Fatalf("review after completion: %v", err)
	}
	if approved.QAStatus != QAStatusApproved {
		t.Errorf("expected APPROVED, got %s", approved.QAStatus)
	}

	history, _ := env.svc.QAHistory(ctx, a.ID)
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
}

func TestList_QAQueue(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		a, _ := env.svc.SaveSections(ctx, newSaveRequest(uuid.New(), map[string]string{"nutrition": nutritionJSON}))
		if i == 0 {
			_, _ = env.svc.Complete(ctx, a.ID, "nurse-1")
		}
	}

	items, total, err := env.svc.ListByStatus(ctx, QAStatusCompleted, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("expected 1 completed assessment, got %d", total)
	}
	if len(items[0].Scores) != 1 || items[0].Scores[0].Total != 5 {
		t.Errorf("expected nutrition score 5, got %+v", items[0].Scores)
	}

	if _, _, err := env.svc.ListByStatus(ctx, "PENDING", 10, 0); err == nil {
		t.Error("expected error for unknown qaStatus filter")
	}
}

func TestScores_LenientOnStoredData(t *testing.T) {
	a := &Assessment{Sections: map[string]json.RawMessage{
		"nutrition":      json.RawMessage(`{"schemaVersion":1,"doesNotHaveMoney":true,"legacyField":"x"}`),
		"painAssessment": json.RawMessage(`{"hasPain":false}`),
		"fallRisk":       json.RawMessage(`not json`),
	}}
	scores := Scores(a)
	if len(scores) != 1 || scores[0].Section != "nutrition" || scores[0].Total != 4 {
		t.Errorf("unexpected scores %+v", scores)
	}
}
