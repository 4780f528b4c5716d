package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hhemr/hhemr/internal/platform/db"
)

func conn(ctx context.Context, pool *pgxpool.Pool) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

func deleteByID(ctx context.Context, q db.Querier, table string, id uuid.UUID) error {
	tag, err := q.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

const patientCols = `id, provider_id, mrn, first_name, last_name, to_char(dob, 'YYYY-MM-DD'), gender,
	phone, address, physician_id, status, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.ProviderID, &p.MRN, &p.FirstName, &p.LastName, &p.DOB, &p.Gender,
		&p.Phone, &p.Address, &p.PhysicianID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, db.Classify(err)
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return db.Classify(conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient (id, provider_id, mrn, first_name, last_name, dob, gender, phone, address, physician_id, status)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		p.ID, p.ProviderID, p.MRN, p.FirstName, p.LastName, p.DOB, p.Gender, p.Phone, p.Address, p.PhysicianID, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt))
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	return db.Classify(conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patient SET
			provider_id = $2, mrn = $3, first_name = $4, last_name = $5, dob = $6::date, gender = $7,
			phone = $8, address = $9, physician_id = $10, status = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.ProviderID, p.MRN, p.FirstName, p.LastName, p.DOB, p.Gender, p.Phone, p.Address, p.PhysicianID, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt))
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID(ctx, conn(ctx, r.pool), "patient", id)
}

func (r *patientRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error) {
	var where []string
	var args []interface{}
	if f.ProviderID != nil {
		args = append(args, *f.ProviderID)
		where = append(where, fmt.Sprintf("provider_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(first_name ILIKE $%d OR last_name ILIKE $%d OR mrn ILIKE $%d)", n, n, n))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	q := conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM patient`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT %s FROM patient%s ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`,
		patientCols, clause, len(args)+1, len(args)+2)
	rows, err := q.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Patient, error) {
		return scanPatient(row)
	})
	return items, total, err
}

// -- Insurance Repository --

type insuranceRepoPG struct {
	pool *pgxpool.Pool
}

func NewInsuranceRepo(pool *pgxpool.Pool) InsuranceRepository {
	return &insuranceRepoPG{pool: pool}
}

const insuranceCols = `id, patient_id, payer_id, member_id, group_number, priority,
	to_char(effective_from, 'YYYY-MM-DD'), to_char(effective_to, 'YYYY-MM-DD'), created_at, updated_at`

func scanInsurance(row pgx.Row) (*Insurance, error) {
	var ins Insurance
	err := row.Scan(&ins.ID, &ins.PatientID, &ins.PayerID, &ins.MemberID, &ins.GroupNumber, &ins.Priority,
		&ins.EffectiveFrom, &ins.EffectiveTo, &ins.CreatedAt, &ins.UpdatedAt)
	if err != nil {
		return nil, db.Classify(err)
	}
	return &ins, nil
}

func (r *insuranceRepoPG) Create(ctx context.Context, ins *Insurance) error {
	ins.ID = uuid.New()
	return db.Classify(conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient_insurance (id, patient_id, payer_id, member_id, group_number, priority, effective_from, effective_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8::date)
		RETURNING created_at, updated_at`,
		ins.ID, ins.PatientID, ins.PayerID, ins.MemberID, ins.GroupNumber, ins.Priority, ins.EffectiveFrom, ins.EffectiveTo,
	).Scan(&ins.CreatedAt, &ins.UpdatedAt))
}

func (r *insuranceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Insurance, error) {
	return scanInsurance(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+insuranceCols+` FROM patient_insurance WHERE id = $1`, id))
}

func (r *insuranceRepoPG) Update(ctx context.Context, ins *Insurance) error {
	return db.Classify(conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patient_insurance SET
			patient_id = $2, payer_id = $3, member_id = $4, group_number = $5, priority = $6,
			effective_from = $7::date, effective_to = $8::date, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		ins.ID, ins.PatientID, ins.PayerID, ins.MemberID, ins.GroupNumber, ins.Priority, ins.EffectiveFrom, ins.EffectiveTo,
	).Scan(&ins.CreatedAt, &ins.UpdatedAt))
}

func (r *insuranceRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID(ctx, conn(ctx, r.pool), "patient_insurance", id)
}

func (r *insuranceRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Insurance, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+insuranceCols+` FROM patient_insurance WHERE patient_id = $1 ORDER BY priority`, patientID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Insurance, error) {
		return scanInsurance(row)
	})
}

// -- Discharge Summary Repository --

type dischargeRepoPG struct {
	pool *pgxpool.Pool
}

func NewDischargeRepo(pool *pgxpool.Pool) DischargeRepository {
	return &dischargeRepoPG{pool: pool}
}

const dischargeCols = `id, patient_id, to_char(discharge_date, 'YYYY-MM-DD'), reason, summary,
	physician_id, created_at, updated_at`

func scanDischarge(row pgx.Row) (*DischargeSummary, error) {
	var d DischargeSummary
	var summary []byte
	err := row.Scan(&d.ID, &d.PatientID, &d.DischargeDate, &d.Reason, &summary,
		&d.PhysicianID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, db.Classify(err)
	}
	if summary != nil {
		d.Summary = summary
	}
	return &d, nil
}

// nullableJSON keeps an absent summary NULL instead of the JSON literal.
func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// Create inserts the summary and flips the patient to DISCHARGED in one
// statement so the two cannot disagree.
func (r *dischargeRepoPG) Create(ctx context.Context, d *DischargeSummary) error {
	d.ID = uuid.New()
	return db.Classify(conn(ctx, r.pool).QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO discharge_summary (id, patient_id, discharge_date, reason, summary, physician_id)
			VALUES ($1, $2, $3::date, $4, $5::jsonb, $6)
			RETURNING created_at, updated_at
		), discharged AS (
			UPDATE patient SET status = 'DISCHARGED', updated_at = NOW() WHERE id = $2
		)
		SELECT created_at, updated_at FROM ins`,
		d.ID, d.PatientID, d.DischargeDate, d.Reason, nullableJSON(d.Summary), d.PhysicianID,
	).Scan(&d.CreatedAt, &d.UpdatedAt))
}

func (r *dischargeRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*DischargeSummary, error) {
	return scanDischarge(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+dischargeCols+` FROM discharge_summary WHERE id = $1`, id))
}

func (r *dischargeRepoPG) Update(ctx context.Context, d *DischargeSummary) error {
	return db.Classify(conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE discharge_summary SET
			patient_id = $2, discharge_date = $3::date, reason = $4, summary = $5::jsonb,
			physician_id = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		d.ID, d.PatientID, d.DischargeDate, d.Reason, nullableJSON(d.Summary), d.PhysicianID,
	).Scan(&d.CreatedAt, &d.UpdatedAt))
}

func (r *dischargeRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID(ctx, conn(ctx, r.pool), "discharge_summary", id)
}

func (r *dischargeRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*DischargeSummary, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+dischargeCols+` FROM discharge_summary WHERE patient_id = $1 ORDER BY discharge_date DESC`, patientID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*DischargeSummary, error) {
		return scanDischarge(row)
	})
}
