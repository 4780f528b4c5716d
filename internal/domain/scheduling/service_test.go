package scheduling

import (
	"context"
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
	items map[uuid.UUID]*PatientSchedule
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*PatientSchedule)}
}

func (m *mockRepo) Create(_ context.Context, s *PatientSchedule) error {
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	m.items[s.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*PatientSchedule, error) {
	s, ok := m.items[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, s *PatientSchedule) error {
	if _, ok := m.items[s.ID]; !ok {
		return db.ErrNotFound
	}
	cp := *s
	m.items[s.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*PatientSchedule, int, error) {
	var out []*PatientSchedule
	for _, s := range m.items {
		if f.PatientID != nil && s.PatientID != *f.PatientID {
			continue
		}
		if f.CaregiverID != nil && s.CaregiverID != *f.CaregiverID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if f.From != nil && s.ScheduledStart.Before(*f.From) {
			continue
		}
		if f.To != nil && !s.ScheduledStart.Before(*f.To) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledStart.Before(out[j].ScheduledStart) })
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

func (m *mockRepo) SetStatus(_ context.Context, id uuid.UUID, status string, from []string) (*PatientSchedule, error) {
	s, ok := m.items[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	allowed := false
	for _, f := range from {
		if s.Status == f {
			allowed = true
		}
	}
	if !allowed {
		return nil, ErrInvalidTransition
	}
	s.Status = status
	cp := *s
	return &cp, nil
}

func (m *mockRepo) Overlapping(_ context.Context, caregiverID uuid.UUID, start, end time.Time, exclude uuid.UUID) ([]*PatientSchedule, error) {
	var out []*PatientSchedule
	for _, s := range m.items {
		if s.CaregiverID != caregiverID || s.ID == exclude || !s.Live() {
			continue
		}
		if s.ScheduledStart.Before(end) && s.ScheduledEnd.After(start) {
			out = append(out, s)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e websocket.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func newTestService() (*Service, *mockRepo, *recordingPublisher) {
	repo := newMockRepo()
	pub := &recordingPublisher{}
	return NewService(repo, pub, zerolog.Nop()), repo, pub
}

var visitDay = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func newVisit(caregiverID uuid.UUID, startHour, endHour int) *PatientSchedule {
	return &PatientSchedule{
		PatientID:      uuid.New(),
		CaregiverID:    caregiverID,
		ProviderID:     uuid.New(),
		VisitType:      VisitRoutine,
		Discipline:     "SN",
		ScheduledStart: visitDay.Add(time.Duration(startHour) * time.Hour),
		ScheduledEnd:   visitDay.Add(time.Duration(endHour) * time.Hour),
	}
}

// -- Tests --

func TestCreate_DefaultsToScheduled(t *testing.T) {
	svc, _, _ := newTestService()
	v := newVisit(uuid.New(), 9, 10)
	if err := svc.Create(context.Background(), v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Status != StatusScheduled || v.ID == uuid.Nil {
		t.Errorf("unexpected visit %+v", v)
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(v *PatientSchedule)
		field  string
	}{
		{"end before start", func(v *PatientSchedule) { v.ScheduledEnd = v.ScheduledStart.Add(-time.Minute) }, "scheduledEnd"},
		{"end equals start", func(v *PatientSchedule) { v.ScheduledEnd = v.ScheduledStart }, "scheduledEnd"},
		{"missing start", func(v *PatientSchedule) { v.ScheduledStart = time.Time{} }, "scheduledStart"},
		{"bad visit type", func(v *PatientSchedule) { v.VisitType = "FOLLOWUP" }, "visitType"},
		{"bad discipline", func(v *PatientSchedule) { v.Discipline = "RN" }, "discipline"},
		{"missing caregiver", func(v *PatientSchedule) { v.CaregiverID = uuid.Nil }, "caregiverId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService()
			v := newVisit(uuid.New(), 9, 10)
			tt.mutate(v)
			verrs, ok := validation.AsErrors(svc.Create(context.Background(), v))
			if !ok || verrs[tt.field] == "" {
				t.Errorf("expected error on %s, got %v", tt.field, verrs)
			}
		})
	}
}

func TestCreate_Overlap(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	cg := uuid.New()
	if err := svc.Create(ctx, newVisit(cg, 9, 11)); err != nil {
		t.Fatalf("first visit: %v", err)
	}

	if err := svc.Create(ctx, newVisit(cg, 10, 12)); !errors.Is(err, ErrOverlap) {
		t.Errorf("expected ErrOverlap, got %v", err)
	}
	// Back-to-back is fine.
	if err := svc.Create(ctx, newVisit(cg, 11, 12)); err != nil {
		t.Errorf("expected adjacent visit to be accepted, got %v", err)
	}
	// A different caregiver is fine.
	if err := svc.Create(ctx, newVisit(uuid.New(), 9, 11)); err != nil {
		t.Errorf("expected other caregiver to be accepted, got %v", err)
	}
}

func TestCreate_CancelledVisitFreesSlot(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	cg := uuid.New()
	first := newVisit(cg, 9, 11)
	_ = svc.Create(ctx, first)
	if _, err := svc.UpdateStatus(ctx, first.ID, StatusUpdate{Status: StatusCancelled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := svc.Create(ctx, newVisit(cg, 9, 11)); err != nil {
		t.Errorf("expected slot to be free after cancel, got %v", err)
	}
}

func TestUpdate_KeepsStatusAndIgnoresSelf(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	v := newVisit(uuid.New(), 9, 10)
	_ = svc.Create(ctx, v)
	_, _ = svc.UpdateStatus(ctx, v.ID, StatusUpdate{Status: StatusInProgress})

	moved := *v
	moved.ScheduledEnd = visitDay.Add(10*time.Hour + 30*time.Minute)
	moved.Status = StatusCancelled
	if err := svc.Update(ctx, &moved); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved.Status != StatusInProgress {
		t.Errorf("expected status to stay IN_PROGRESS, got %s", moved.Status)
	}
}

func TestUpdate_RejectsClosedVisit(t *testing.T) {
	for _, final := range []string{StatusCompleted, StatusMissed, StatusCancelled} {
		svc, repo, _ := newTestService()
		ctx := context.Background()
		v := newVisit(uuid.New(), 9, 10)
		_ = svc.Create(ctx, v)
		if _, err := svc.UpdateStatus(ctx, v.ID, StatusUpdate{Status: final}); err != nil {
			t.Fatalf("%s: unexpected error %v", final, err)
		}

		moved := *v
		moved.CaregiverID = uuid.New()
		moved.ScheduledStart = visitDay.Add(14 * time.Hour)
		moved.ScheduledEnd = visitDay.Add(15 * time.Hour)
		if err := svc.Update(ctx, &moved); !errors.Is(err, ErrClosed) {
			t.Errorf("%s: expected ErrClosed, got %v", final, err)
		}
		if stored := repo.items[v.ID]; stored.CaregiverID != v.CaregiverID || !stored.ScheduledStart.Equal(v.ScheduledStart) {
			t.Errorf("%s: closed visit was rewritten: %+v", final, stored)
		}
	}
}

func TestUpdateStatus_Transitions(t *testing.T) {
	tests := []struct {
		path []string
		ok   bool
	}{
		{[]string{StatusInProgress, StatusCompleted}, true},
		{[]string{StatusCompleted}, true},
		{[]string{StatusMissed}, true},
		{[]string{StatusInProgress, StatusMissed}, false},
		{[]string{StatusCompleted, StatusInProgress}, false},
		{[]string{StatusCancelled, StatusCompleted}, false},
	}
	for _, tt := range tests {
		svc, _, _ := newTestService()
		ctx := context.Background()
		v := newVisit(uuid.New(), 9, 10)
		_ = svc.Create(ctx, v)

		var err error
		for _, to := range tt.path {
			if _, err = svc.UpdateStatus(ctx, v.ID, StatusUpdate{Status: to}); err != nil {
				break
			}
		}
		if tt.ok && err != nil {
			t.Errorf("%v: unexpected error %v", tt.path, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%v: expected ErrInvalidTransition, got %v", tt.path, err)
		}
	}
}

func TestUpdateStatus_RejectsScheduled(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.UpdateStatus(context.Background(), uuid.New(), StatusUpdate{Status: StatusScheduled})
	if _, ok := validation.AsErrors(err); !ok {
		t.Errorf("expected validation error when moving back to SCHEDULED, got %v", err)
	}
}

func TestUpdateStatus_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.UpdateStatus(context.Background(), uuid.New(), StatusUpdate{Status: StatusMissed})
	if !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateStatus_Publishes(t *testing.T) {
	svc, _, pub := newTestService()
	ctx := db.WithAgency(context.Background(), "acme")
	v := newVisit(uuid.New(), 9, 10)
	_ = svc.Create(ctx, v)

	if _, err := svc.UpdateStatus(ctx, v.ID, StatusUpdate{Status: StatusInProgress}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(pub.events))
	}
	topics := map[string]bool{}
	for _, e := range pub.events {
		topics[e.Topic] = true
		if e.Type != websocket.EventVisitStatus || e.AgencyID != "acme" {
			t.Errorf("unexpected event %+v", e)
		}
	}
	if !topics[websocket.ScheduleTopic(v.ID)] || !topics[websocket.PatientTopic(v.PatientID)] {
		t.Errorf("unexpected topics %v", topics)
	}
}

func TestList_Window(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	cg := uuid.New()
	_ = svc.Create(ctx, newVisit(cg, 9, 10))
	_ = svc.Create(ctx, newVisit(cg, 30, 31))

	from := visitDay
	to := visitDay.Add(24 * time.Hour)
	items, total, err := svc.List(ctx, Filter{CaregiverID: &cg, From: &from, To: &to}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || items[0].ScheduledStart.Hour() != 9 {
		t.Errorf("expected only the first day's visit, got %d", total)
	}

	if _, _, err := svc.List(ctx, Filter{From: &to, To: &from}, 20, 0); err == nil {
		t.Error("expected error for reversed window")
	}
}
