package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nptracker/nptracker/internal/platform/db"
	"github.com/nptracker/nptracker/pkg/civil"
)

type reminderRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &reminderRepoPG{pool: pool}
}

func (r *reminderRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const reminderCols = `id, patient_id, task_name, start_date, interval_label, due_date,
	status, note, previous_id, completed_at, created_at, updated_at`

func scanReminder(row pgx.Row) (*Reminder, error) {
	var rm Reminder
	var start, due time.Time
	err := row.Scan(&rm.ID, &rm.PatientID, &rm.TaskName, &start, &rm.IntervalLabel, &due,
		&rm.Status, &rm.Note, &rm.PreviousID, &rm.CompletedAt, &rm.CreatedAt, &rm.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rm.StartDate = civil.Of(start)
	rm.DueDate = civil.Of(due)
	return &rm, nil
}

func (r *reminderRepoPG) Create(ctx context.Context, rm *Reminder) error {
	rm.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO reminder (id, patient_id, task_name, start_date, interval_label, due_date,
			status, note, previous_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		rm.ID, rm.PatientID, rm.TaskName, rm.StartDate.Time, rm.IntervalLabel, rm.DueDate.Time,
		rm.Status, rm.Note, rm.PreviousID).
		Scan(&rm.CreatedAt, &rm.UpdatedAt)
	if rm.PreviousID != nil && db.IsUniqueViolation(err) {
		return ErrAlreadyFollowedUp
	}
	return err
}

func (r *reminderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	return scanReminder(r.conn(ctx).QueryRow(ctx, `SELECT `+reminderCols+` FROM reminder WHERE id = $1`, id))
}

func (r *reminderRepoPG) FollowUpOf(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	return scanReminder(r.conn(ctx).QueryRow(ctx, `SELECT `+reminderCols+` FROM reminder WHERE previous_id = $1`, id))
}

func (r *reminderRepoPG) Complete(ctx context.Context, id uuid.UUID, at time.Time) (*Reminder, error) {
	rm, err := scanReminder(r.conn(ctx).QueryRow(ctx, `
		UPDATE reminder SET status = $2, completed_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
		RETURNING `+reminderCols,
		id, StatusDone, at, StatusPending))
	if !errors.Is(err, ErrNotFound) {
		return rm, err
	}

	// Nothing updated: either the reminder is gone or it was already done.
	var status Status
	err = r.conn(ctx).QueryRow(ctx, `SELECT status FROM reminder WHERE id = $1`, id).Scan(&status)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}
	return nil, ErrAlreadyDone
}

func (r *reminderRepoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Reminder, int, error) {
	var conds []string
	var args []interface{}
	if filter.PatientID != uuid.Nil {
		args = append(args, filter.PatientID)
		conds = append(conds, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM reminder`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM reminder%s ORDER BY due_date, created_at LIMIT $%d OFFSET $%d`, reminderCols, where, n+1, n+2),
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

func (r *reminderRepoPG) ListPending(ctx context.Context) ([]*Reminder, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+reminderCols+` FROM reminder WHERE status = $1 ORDER BY due_date, created_at`, StatusPending)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *reminderRepoPG) ListAll(ctx context.Context) ([]*Reminder, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+reminderCols+` FROM reminder ORDER BY due_date, created_at`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *reminderRepoPG) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM reminder`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func collect(rows pgx.Rows) ([]*Reminder, error) {
	defer rows.Close()
	var items []*Reminder
	for rows.Next() {
		rm, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rm)
	}
	return items, rows.Err()
}
