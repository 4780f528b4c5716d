package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hhemr/hhemr/internal/platform/db"
	"github.com/hhemr/hhemr/pkg/forms"
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

const baseCols = `id, patient_schedule_id, patient_id, caregiver_id, provider_id,
	qa_status, qa_comment, qa_reviewed_by, qa_reviewed_at, visit_date, time_in, time_out,
	version_id, created_at, updated_at, section_versions`

// sectionDefs fixes the column order used by every SELECT and scan.
var sectionDefs = forms.All()

func assessmentCols(prefix string) string {
	cols := strings.Split(baseCols, ",")
	for _, d := range sectionDefs {
		cols = append(cols, d.Column)
	}
	for i, c := range cols {
		cols[i] = prefix + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

var (
	selectCols    = assessmentCols("")
	qualifiedCols = assessmentCols("a.")
)

func scanAssessment(row pgx.Row) (*Assessment, error) {
	var a Assessment
	raw := make([][]byte, len(sectionDefs))
	dest := []interface{}{
		&a.ID, &a.PatientScheduleID, &a.PatientID, &a.CaregiverID, &a.ProviderID,
		&a.QAStatus, &a.QAComment, &a.QAReviewedBy, &a.QAReviewedAt, &a.VisitDate, &a.TimeIn, &a.TimeOut,
		&a.VersionID, &a.CreatedAt, &a.UpdatedAt, &a.SectionVersions,
	}
	for i := range raw {
		dest = append(dest, &raw[i])
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.Sections = make(map[string]json.RawMessage)
	for i, d := range sectionDefs {
		if raw[i] != nil {
			a.Sections[d.Name] = json.RawMessage(raw[i])
		}
	}
	return &a, nil
}

func (r *repoPG) Upsert(ctx context.Context, w *Write) (*Assessment, error) {
	cols := []string{"id", "patient_schedule_id", "patient_id", "caregiver_id", "provider_id", "visit_date", "time_in", "time_out"}
	args := []interface{}{w.ID, w.PatientScheduleID, w.PatientID, w.CaregiverID, w.ProviderID, w.VisitDate, w.TimeIn, w.TimeOut}
	sets := []string{
		"caregiver_id = EXCLUDED.caregiver_id",
		"provider_id = EXCLUDED.provider_id",
		"patient_id = COALESCE(EXCLUDED.patient_id, assessment.patient_id)",
		"visit_date = COALESCE(EXCLUDED.visit_date, assessment.visit_date)",
		"time_in = COALESCE(EXCLUDED.time_in, assessment.time_in)",
		"time_out = COALESCE(EXCLUDED.time_out, assessment.time_out)",
	}

	// Only the named section columns are written, so a concurrent save of a
	// sibling section is never overwritten. Each written section records the
	// new record version; the guard below only looks at those entries.
	initial := make(map[string]int, len(w.Sections))
	var bumps []string
	guards := []string{"assessment.version_id >= $%[1]d"}
	for _, d := range sectionDefs {
		raw, ok := w.Sections[d.Name]
		if !ok {
			continue
		}
		cols = append(cols, d.Column)
		args = append(args, []byte(raw))
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", d.Column, d.Column))
		initial[d.Name] = 1
		bumps = append(bumps, fmt.Sprintf("'%s', assessment.version_id + 1", d.Name))
		guards = append(guards, fmt.Sprintf("COALESCE((assessment.section_versions->>'%s')::int, 0) <= $%%[1]d", d.Name))
	}
	versions, err := json.Marshal(initial)
	if err != nil {
		return nil, err
	}
	cols = append(cols, "section_versions")
	args = append(args, versions)
	sets = append(sets,
		"section_versions = assessment.section_versions || jsonb_build_object("+strings.Join(bumps, ", ")+")",
		"qa_status = 'INUSE'",
		"version_id = assessment.version_id + 1",
		"updated_at = NOW()",
	)

	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	expected := w.ExpectedVersion
	if w.CreateOnly {
		expected = -1
	}
	args = append(args, expected)
	versionArg := len(args)
	guard := fmt.Sprintf(strings.Join(guards, " AND "), versionArg)

	sql := fmt.Sprintf(`
		INSERT INTO assessment (%s) VALUES (%s)
		ON CONFLICT (patient_schedule_id) DO UPDATE SET %s
		WHERE $%d = 0 OR (%s)
		RETURNING %s`,
		strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(sets, ", "),
		versionArg, guard, selectCols)

	a, err := scanAssessment(r.conn(ctx).QueryRow(ctx, sql, args...))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrVersionConflict
	}
	if err != nil {
		return nil, db.Classify(err)
	}
	return a, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	return scanAssessment(r.conn(ctx).QueryRow(ctx, `SELECT `+selectCols+` FROM assessment WHERE id = $1`, id))
}

func (r *repoPG) GetBySchedule(ctx context.Context, patientScheduleID uuid.UUID) (*Assessment, error) {
	return scanAssessment(r.conn(ctx).QueryRow(ctx, `SELECT `+selectCols+` FROM assessment WHERE patient_schedule_id = $1`, patientScheduleID))
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Assessment, int, error) {
	var where []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientScheduleID != nil {
		add("patient_schedule_id = $%d", *f.PatientScheduleID)
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.CaregiverID != nil {
		add("caregiver_id = $%d", *f.CaregiverID)
	}
	if f.QAStatus != "" {
		add("qa_status = $%d", f.QAStatus)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM assessment`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM assessment%s ORDER BY updated_at DESC, id LIMIT $%d OFFSET $%d`,
		selectCols, clause, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

// Transition reads the previous status, updates and appends the QA event in
// one statement, so the history always matches the row.
func (r *repoPG) Transition(ctx context.Context, t Transition) (*Assessment, error) {
	sql := `
		WITH prev AS (
			SELECT id, qa_status FROM assessment WHERE id = $1 FOR UPDATE
		), a AS (
			UPDATE assessment SET qa_status = $2,
				qa_comment = CASE WHEN $7 THEN $3 ELSE qa_comment END,
				qa_reviewed_by = CASE WHEN $7 THEN $4 ELSE qa_reviewed_by END,
				qa_reviewed_at = CASE WHEN $7 THEN NOW() ELSE qa_reviewed_at END,
				version_id = version_id + 1, updated_at = NOW()
			WHERE id = $1 AND qa_status = ANY($5)
			RETURNING ` + selectCols + `
		), ev AS (
			INSERT INTO assessment_qa_event (id, assessment_id, from_status, to_status, comment, reviewer_id)
			SELECT $6, a.id, prev.qa_status, a.qa_status, $3, $4 FROM a JOIN prev ON prev.id = a.id
		)
		SELECT ` + qualifiedCols + ` FROM a`

	a, err := scanAssessment(r.conn(ctx).QueryRow(ctx, sql, t.ID, t.To, t.Comment, t.Actor, t.From, t.EventID, t.Review))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidTransition
	}
	return a, err
}

func (r *repoPG) ListQAEvents(ctx context.Context, assessmentID uuid.UUID) ([]*QAEvent, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, assessment_id, from_status, to_status, comment, reviewer_id, created_at
		FROM assessment_qa_event WHERE assessment_id = $1 ORDER BY created_at, id`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*QAEvent
	for rows.Next() {
		var e QAEvent
		if err := rows.Scan(&e.ID, &e.AssessmentID, &e.FromStatus, &e.ToStatus, &e.Comment, &e.ReviewerID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *repoPG) SchedulePatient(ctx context.Context, patientScheduleID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `SELECT patient_id FROM patient_schedule WHERE id = $1`, patientScheduleID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	return id, err
}
