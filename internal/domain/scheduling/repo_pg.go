package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hhemr/hhemr/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const scheduleCols = `id, patient_id, caregiver_id, provider_id, visit_type, discipline,
	scheduled_start, scheduled_end, status, notes, created_at, updated_at`

func scanSchedule(row pgx.Row) (*PatientSchedule, error) {
	var s PatientSchedule
	err := row.Scan(&s.ID, &s.PatientID, &s.CaregiverID, &s.ProviderID, &s.VisitType, &s.Discipline,
		&s.ScheduledStart, &s.ScheduledEnd, &s.Status, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, db.Classify(err)
	}
	return &s, nil
}

func collect(rows pgx.Rows) ([]*PatientSchedule, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*PatientSchedule, error) {
		return scanSchedule(row)
	})
}

func (r *repoPG) Create(ctx context.Context, s *PatientSchedule) error {
	s.ID = uuid.New()
	return db.Classify(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_schedule (id, patient_id, caregiver_id, provider_id, visit_type, discipline,
			scheduled_start, scheduled_end, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		s.ID, s.PatientID, s.CaregiverID, s.ProviderID, s.VisitType, s.Discipline,
		s.ScheduledStart, s.ScheduledEnd, s.Status, s.Notes,
	).Scan(&s.CreatedAt, &s.UpdatedAt))
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*PatientSchedule, error) {
	return scanSchedule(r.conn(ctx).QueryRow(ctx, `SELECT `+scheduleCols+` FROM patient_schedule WHERE id = $1`, id))
}

// Update rewrites the plan but never the status, which only moves through
// SetStatus.
func (r *repoPG) Update(ctx context.Context, s *PatientSchedule) error {
	return db.Classify(r.conn(ctx).QueryRow(ctx, `
		UPDATE patient_schedule SET
			patient_id = $2, caregiver_id = $3, provider_id = $4, visit_type = $5, discipline = $6,
			scheduled_start = $7, scheduled_end = $8, notes = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING status, created_at, updated_at`,
		s.ID, s.PatientID, s.CaregiverID, s.ProviderID, s.VisitType, s.Discipline,
		s.ScheduledStart, s.ScheduledEnd, s.Notes,
	).Scan(&s.Status, &s.CreatedAt, &s.UpdatedAt))
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient_schedule WHERE id = $1`, id)
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*PatientSchedule, int, error) {
	var where []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.CaregiverID != nil {
		add("caregiver_id = $%d", *f.CaregiverID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.From != nil {
		add("scheduled_start >= $%d", *f.From)
	}
	if f.To != nil {
		add("scheduled_start < $%d", *f.To)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	q := r.conn(ctx)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM patient_schedule`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT %s FROM patient_schedule%s ORDER BY scheduled_start LIMIT $%d OFFSET $%d`,
		scheduleCols, clause, len(args)+1, len(args)+2)
	rows, err := q.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows)
	return items, total, err
}

func (r *repoPG) SetStatus(ctx context.Context, id uuid.UUID, status string, from []string) (*PatientSchedule, error) {
	s, err := scanSchedule(r.conn(ctx).QueryRow(ctx, `
		UPDATE patient_schedule SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
		RETURNING `+scheduleCols,
		id, status, from,
	))
	if errors.Is(err, db.ErrNotFound) {
		// Distinguish a missing row from one in the wrong state.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidTransition
	}
	return s, err
}

func (r *repoPG) Overlapping(ctx context.Context, caregiverID uuid.UUID, start, end time.Time, exclude uuid.UUID) ([]*PatientSchedule, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+scheduleCols+` FROM patient_schedule
		WHERE caregiver_id = $1 AND id <> $4
			AND status IN ('SCHEDULED', 'IN_PROGRESS')
			AND scheduled_start < $3 AND scheduled_end > $2
		ORDER BY scheduled_start`,
		caregiverID, start, end, exclude,
	)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}
