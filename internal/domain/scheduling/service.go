package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hhemr/hhemr/internal/platform/db"
	"github.com/hhemr/hhemr/internal/platform/websocket"
	"github.com/hhemr/hhemr/pkg/validation"
)

type Service struct {
	repo      Repository
	publisher websocket.EventPublisher
	logger    zerolog.Logger
}

func NewService(repo Repository, publisher websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{repo: repo, publisher: publisher, logger: logger.With().Str("component", "scheduling").Logger()}
}

func (s *Service) Create(ctx context.Context, ps *PatientSchedule) error {
	if ps.Status == "" {
		ps.Status = StatusScheduled
	}
	if err := s.check(ctx, ps, uuid.Nil); err != nil {
		return err
	}
	return s.repo.Create(ctx, ps)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*PatientSchedule, error) {
	return s.repo.GetByID(ctx, id)
}

// Update replaces the visit plan. The status is carried over from the stored
// visit; use UpdateStatus to move it. Completed, missed and cancelled visits
// cannot be edited.
func (s *Service) Update(ctx context.Context, ps *PatientSchedule) error {
	current, err := s.repo.GetByID(ctx, ps.ID)
	if err != nil {
		return err
	}
	if !current.Live() {
		return fmt.Errorf("%w: status is %s", ErrClosed, current.Status)
	}
	ps.Status = current.Status
	if err := s.check(ctx, ps, ps.ID); err != nil {
		return err
	}
	return s.repo.Update(ctx, ps)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*PatientSchedule, int, error) {
	if f.Status != "" {
		if err := validation.Var("status", f.Status, "oneof=SCHEDULED IN_PROGRESS COMPLETED MISSED CANCELLED"); err != nil {
			return nil, 0, err
		}
	}
	if f.From != nil && f.To != nil && !f.To.After(*f.From) {
		return nil, 0, validation.Errors{"to": "must be after from"}
	}
	return s.repo.List(ctx, f, limit, offset)
}

// UpdateStatus moves a visit along SCHEDULED → IN_PROGRESS → COMPLETED, or
// to MISSED/CANCELLED, and notifies subscribers of the schedule and patient.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, u StatusUpdate) (*PatientSchedule, error) {
	if err := validation.Struct(u); err != nil {
		return nil, err
	}
	ps, err := s.repo.SetStatus(ctx, id, u.Status, sourcesFor(u.Status))
	if err != nil {
		return nil, err
	}
	s.publish(ctx, ps)
	return ps, nil
}

// check validates the table shape and rejects a live visit that overlaps
// another live visit of the same caregiver.
func (s *Service) check(ctx context.Context, ps *PatientSchedule, self uuid.UUID) error {
	if err := validation.Struct(ps); err != nil {
		return err
	}
	if !ps.Live() {
		return nil
	}
	clash, err := s.repo.Overlapping(ctx, ps.CaregiverID, ps.ScheduledStart, ps.ScheduledEnd, self)
	if err != nil {
		return fmt.Errorf("check caregiver availability: %w", err)
	}
	if len(clash) > 0 {
		return fmt.Errorf("%w: visit %s starts %s", ErrOverlap, clash[0].ID, clash[0].ScheduledStart.Format(time.RFC3339))
	}
	return nil
}

func (s *Service) publish(ctx context.Context, ps *PatientSchedule) {
	data, _ := json.Marshal(map[string]string{"status": ps.Status})
	agency := db.AgencyFromContext(ctx)
	for _, topic := range []string{websocket.ScheduleTopic(ps.ID), websocket.PatientTopic(ps.PatientID)} {
		err := s.publisher.Publish(ctx, websocket.Event{
			Type:       websocket.EventVisitStatus,
			Topic:      topic,
			AgencyID:   agency,
			ResourceID: ps.ID.String(),
			Data:       data,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("topic", topic).Str("schedule_id", ps.ID.String()).Msg("publish event")
		}
	}
}
