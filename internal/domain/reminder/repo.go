package reminder

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Reminder) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reminder, error)
	// FollowUpOf returns the reminder scheduled after id, or ErrNotFound.
	FollowUpOf(ctx context.Context, id uuid.UUID) (*Reminder, error)
	// Complete moves a pending reminder to Done. It returns ErrAlreadyDone
	// when the reminder is already done and ErrNotFound when it is absent.
	Complete(ctx context.Context, id uuid.UUID, at time.Time) (*Reminder, error)
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Reminder, int, error)
	// ListPending returns every pending reminder ordered by due date.
	ListPending(ctx context.Context) ([]*Reminder, error)
	ListAll(ctx context.Context) ([]*Reminder, error)
	DeleteAll(ctx context.Context) (int64, error)
}
