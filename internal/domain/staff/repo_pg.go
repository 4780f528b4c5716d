package staff

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

func count(ctx context.Context, q db.Querier, query string, args ...interface{}) (int, error) {
	var total int
	if err := q.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// -- Provider Repository --

type providerRepoPG struct {
	pool *pgxpool.Pool
}

func NewProviderRepo(pool *pgxpool.Pool) ProviderRepository {
	return &providerRepoPG{pool: pool}
}

const providerCols = `id, name, npi, tax_id, phone, address, active, created_at, updated_at`

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.Name, &p.NPI, &p.TaxID, &p.Phone, &p.Address, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, db.Classify(err)
	}
	return &p, nil
}

func (r *providerRepoPG) Create(ctx context.Context, p *Provider) error {
	p.ID = uuid.New()
	return db.Classify(conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO provider (id, name, npi, tax_id, phone, address, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.NPI, p.TaxID, p.Phone, p.Address, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt))
}

func (r *providerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return scanProvider(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+providerCols+` FROM provider WHERE id = $1`, id))
}

func (r *providerRepoPG) Update(ctx context.Context, p *Provider) error {
	return db.Classify(conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE provider SET
			name = $2, npi = $3, tax_id = $4, phone = $5, address = $6, active = $7,
			updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.NPI, p.TaxID, p.Phone, p.Address, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt))
}

func (r *providerRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID(ctx, conn(ctx, r.pool), "provider", id)
}

func (r *providerRepoPG) List(ctx context.Context, limit, offset int) ([]*Provider, int, error) {
	q := conn(ctx, r.pool)
	total, err := count(ctx, q, `SELECT COUNT(*) FROM provider`)
	if err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT `+providerCols+` FROM provider ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Provider, error) {
		return scanProvider(row)
	})
	return items, total, err
}

// -- Caregiver Repository --

type caregiverRepoPG struct {
	pool *pgxpool.Pool
}

func NewCaregiverRepo(pool *pgxpool.Pool) CaregiverRepository {
	return &caregiverRepoPG{pool: pool}
}

const caregiverCols = `id, provider_id, first_name, last_name, discipline, license_number,
	email, phone, active, created_at, updated_at`

func scanCaregiver(row pgx.Row) (*Caregiver, error) {
	var cg Caregiver
	err := row.Scan(&cg.ID, &cg.ProviderID, &cg.FirstName, &cg.LastName, &cg.Discipline, &cg.LicenseNumber,
		&cg.Email, &cg.Phone, &cg.Active, &cg.CreatedAt, &cg.UpdatedAt)
	if err != nil {
		return nil, db.Classify(err)
	}
	return &cg, nil
}

func (r *caregiverRepoPG) Create(ctx context.Context, cg *Caregiver) error {
	cg.ID = uuid.New()
	return db.Classify(conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO caregiver (id, provider_id, first_name, last_name, discipline, license_number, email, phone, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		cg.ID, cg.ProviderID, cg.FirstName, cg.LastName, cg.Discipline, cg.LicenseNumber, cg.Email, cg.Phone, cg.Active,
	).Scan(&cg.CreatedAt, &cg.UpdatedAt))
}

func (r *caregiverRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Caregiver, error) {
	return scanCaregiver(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+caregiverCols+` FROM caregiver WHERE id = $1`, id))
}

func (r *caregiverRepoPG) Update(ctx context.Context, cg *Caregiver) error {
	return db.Classify(conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE caregiver SET
			provider_id = $2, first_name = $3, last_name = $4, discipline = $5,
			license_number = $6, email = $7, phone = $8, active = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		cg.ID, cg.ProviderID, cg.FirstName, cg.LastName, cg.Discipline, cg.LicenseNumber, cg.Email, cg.Phone, cg.Active,
	).Scan(&cg.CreatedAt, &cg.UpdatedAt))
}

func (r *caregiverRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID(ctx, conn(ctx, r.pool), "caregiver", id)
}

func (r *caregiverRepoPG) List(ctx context.Context, f CaregiverFilter, limit, offset int) ([]*Caregiver, int, error) {
	var where []string
	var args []interface{}
	if f.ProviderID != nil {
		args = append(args, *f.ProviderID)
		where = append(where, fmt.Sprintf("provider_id = $%d", len(args)))
	}
	if f.Discipline != "" {
		args = append(args, f.Discipline)
		where = append(where, fmt.Sprintf("discipline = $%d", len(args)))
	}
	if f.ActiveOnly {
		where = append(where, "active")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	q := conn(ctx, r.pool)
	total, err := count(ctx, q, `SELECT COUNT(*) FROM caregiver`+clause, args...)
	if err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT %s FROM caregiver%s ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`,
		caregiverCols, clause, len(args)+1, len(args)+2)
	rows, err := q.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Caregiver, error) {
		return scanCaregiver(row)
	})
	return items, total, err
}

// -- Physician Repository --

type physicianRepoPG struct {
	pool *pgxpool.Pool
}

func NewPhysicianRepo(pool *pgxpool.Pool) PhysicianRepository {
	return &physicianRepoPG{pool: pool}
}

const physicianCols = `id, first_name, last_name, npi, phone, fax, email, created_at, updated_at`

func scanPhysician(row pgx.Row) (*Physician, error) {
	var p Physician
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.NPI, &p.Phone, &p.Fax, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, db.Classify(err)
	}
	return &p, nil
}

func (r *physicianRepoPG) Create(ctx context.Context, p *Physician) error {
	p.ID = uuid.New()
	return db.Classify(conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO physician (id, first_name, last_name, npi, phone, fax, email)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.NPI, p.Phone, p.Fax, p.Email,
	).Scan(&p.CreatedAt, &p.UpdatedAt))
}

func (r *physicianRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Physician, error) {
	return scanPhysician(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+physicianCols+` FROM physician WHERE id = $1`, id))
}

func (r *physicianRepoPG) GetByNPI(ctx context.Context, npi string) (*Physician, error) {
	return scanPhysician(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+physicianCols+` FROM physician WHERE npi = $1`, npi))
}

func (r *physicianRepoPG) Update(ctx context.Context, p *Physician) error {
	return db.Classify(conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE physician SET
			first_name = $2, last_name = $3, npi = $4, phone = $5, fax = $6, email = $7,
			updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.NPI, p.Phone, p.Fax, p.Email,
	).Scan(&p.CreatedAt, &p.UpdatedAt))
}

func (r *physicianRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID(ctx, conn(ctx, r.pool), "physician", id)
}

func (r *physicianRepoPG) List(ctx context.Context, limit, offset int) ([]*Physician, int, error) {
	q := conn(ctx, r.pool)
	total, err := count(ctx, q, `SELECT COUNT(*) FROM physician`)
	if err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx,
		`SELECT `+physicianCols+` FROM physician ORDER BY last_name, first_name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Physician, error) {
		return scanPhysician(row)
	})
	return items, total, err
}

// -- Payer Repository --

type payerRepoPG struct {
	pool *pgxpool.Pool
}

func NewPayerRepo(pool *pgxpool.Pool) PayerRepository {
	return &payerRepoPG{pool: pool}
}

const payerCols = `id, name, payer_type, payer_code, active, created_at, updated_at`

func scanPayer(row pgx.Row) (*Payer, error) {
	var p Payer
	err := row.Scan(&p.ID, &p.Name, &p.PayerType, &p.PayerCode, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, db.Classify(err)
	}
	return &p, nil
}

func (r *payerRepoPG) Create(ctx context.Context, p *Payer) error {
	p.ID = uuid.New()
	return db.Classify(conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO payer (id, name, payer_type, payer_code, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.PayerType, p.PayerCode, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt))
}

func (r *payerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Payer, error) {
	return scanPayer(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+payerCols+` FROM payer WHERE id = $1`, id))
}

func (r *payerRepoPG) Update(ctx context.Context, p *Payer) error {
	return db.Classify(conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE payer SET name = $2, payer_type = $3, payer_code = $4, active = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.PayerType, p.PayerCode, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt))
}

func (r *payerRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID(ctx, conn(ctx, r.pool), "payer", id)
}

func (r *payerRepoPG) List(ctx context.Context, limit, offset int) ([]*Payer, int, error) {
	q := conn(ctx, r.pool)
	total, err := count(ctx, q, `SELECT COUNT(*) FROM payer`)
	if err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT `+payerCols+` FROM payer ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Payer, error) {
		return scanPayer(row)
	})
	return items, total, err
}
