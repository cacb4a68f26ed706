package tasktype

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nptracker/nptracker/internal/platform/db"
)

type taskTypeRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &taskTypeRepoPG{pool: pool}
}

func (r *taskTypeRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const taskTypeCols = `id, name, stages, created_at, updated_at`

func scanTaskType(row pgx.Row) (*TaskType, error) {
	var t TaskType
	var stages []string
	if err := row.Scan(&t.ID, &t.Name, &stages, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.Stages = stages
	return &t, nil
}

func (r *taskTypeRepoPG) Create(ctx context.Context, t *TaskType) error {
	t.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO task_type (id, name, stages) VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		t.ID, t.Name, []string(t.Stages)).
		Scan(&t.CreatedAt, &t.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateName
	}
	return err
}

func (r *taskTypeRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TaskType, error) {
	return scanTaskType(r.conn(ctx).QueryRow(ctx, `SELECT `+taskTypeCols+` FROM task_type WHERE id = $1`, id))
}

func (r *taskTypeRepoPG) GetByName(ctx context.Context, name string) (*TaskType, error) {
	return scanTaskType(r.conn(ctx).QueryRow(ctx, `SELECT `+taskTypeCols+` FROM task_type WHERE name = $1`, name))
}

func (r *taskTypeRepoPG) Update(ctx context.Context, t *TaskType) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE task_type SET name = $2, stages = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		t.ID, t.Name, []string(t.Stages)).
		Scan(&t.CreatedAt, &t.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case db.IsUniqueViolation(err):
		return ErrDuplicateName
	}
	return err
}

func (r *taskTypeRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM task_type WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *taskTypeRepoPG) List(ctx context.Context, limit, offset int) ([]*TaskType, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM task_type`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+taskTypeCols+` FROM task_type ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *taskTypeRepoPG) ListAll(ctx context.Context) ([]*TaskType, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+taskTypeCols+` FROM task_type ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *taskTypeRepoPG) Upsert(ctx context.Context, t *TaskType) (bool, error) {
	var created bool
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO task_type (id, name, stages) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET stages = EXCLUDED.stages, updated_at = NOW()
		RETURNING id, created_at, updated_at, (xmax = 0)`,
		uuid.New(), t.Name, []string(t.Stages)).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt, &created)
	return created, err
}

func collect(rows pgx.Rows) ([]*TaskType, error) {
	defer rows.Close()
	var items []*TaskType
	for rows.Next() {
		t, err := scanTaskType(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}
