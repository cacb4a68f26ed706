package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nptracker/nptracker/internal/platform/db"
	"github.com/nptracker/nptracker/pkg/civil"
)

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, name, facility, ward, room, dob, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var dob *time.Time
	if err := row.Scan(&p.ID, &p.Name, &p.Facility, &p.Ward, &p.Room, &dob, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if dob != nil {
		d := civil.Of(*dob)
		p.DOB = &d
	}
	return &p, nil
}

func dateArg(d *civil.Date) *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	return &d.Time
}

const insertPatient = `
	INSERT INTO patient (id, name, facility, ward, room, dob)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING created_at, updated_at`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, insertPatient,
		p.ID, p.Name, p.Facility, p.Ward, p.Room, dateArg(p.DOB)).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// CreateBatch inserts all patients in one round trip.
func (r *patientRepoPG) CreateBatch(ctx context.Context, ps []*Patient) error {
	if len(ps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range ps {
		p.ID = uuid.New()
		batch.Queue(insertPatient, p.ID, p.Name, p.Facility, p.Ward, p.Room, dateArg(p.DOB))
	}

	br := r.conn(ctx).SendBatch(ctx, batch)
	defer br.Close()
	for _, p := range ps {
		if err := br.QueryRow().Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("insert %q at %q: %w", p.Name, p.Facility, ErrDuplicate)
			}
			return fmt.Errorf("insert %q at %q: %w", p.Name, p.Facility, err)
		}
	}
	return br.Close()
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Patient, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patient WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET name = $2, facility = $3, ward = $4, room = $5, dob = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Facility, p.Ward, p.Room, dateArg(p.DOB)).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case db.IsUniqueViolation(err):
		return ErrDuplicate
	}
	return err
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, facility string, limit, offset int) ([]*Patient, int, error) {
	where, args := ``, []interface{}{}
	if facility != "" {
		where, args = ` WHERE facility = $1`, append(args, facility)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM patient%s ORDER BY facility, name LIMIT $%d OFFSET $%d`, patientCols, where, n+1, n+2),
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *patientRepoPG) ListAll(ctx context.Context) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patient ORDER BY facility, name`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *patientRepoPG) Keys(ctx context.Context) (map[Key]bool, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT name, facility FROM patient`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	keys := make(map[Key]bool)
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.Name, &k.Facility); err != nil {
			return nil, err
		}
		keys[k] = true
	}
	return keys, rows.Err()
}

func collect(rows pgx.Rows) ([]*Patient, error) {
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
