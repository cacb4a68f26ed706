package reminder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nptracker/nptracker/internal/domain/cadence"
	"github.com/nptracker/nptracker/internal/domain/patient"
	"github.com/nptracker/nptracker/internal/platform/telemetry"
	"github.com/nptracker/nptracker/pkg/civil"
)

var (
	ErrNotFound          = errors.New("reminder not found")
	ErrAlreadyDone       = errors.New("reminder is already done")
	ErrAlreadyFollowedUp = errors.New("reminder already has a follow-up")
	ErrNoNextStage       = errors.New("task type has no next stage for this interval")
	ErrInvalidAction     = errors.New("follow-up action must be repeat or advance")
	ErrInvalid           = errors.New("invalid reminder")
)

// PatientDirectory is the read side of the patient store used by the
// dashboard. Unknown ids are absent from the returned map.
type PatientDirectory interface {
	GetPatients(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*patient.Patient, error)
}

// TxRunner runs fn in a transaction. The context passed to fn carries it.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	reminders Repository
	patients  PatientDirectory
	stages    cadence.Registry
	tx        TxRunner
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(reminders Repository, patients PatientDirectory, stages cadence.Registry, metrics *telemetry.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		reminders: reminders,
		patients:  patients,
		stages:    stages,
		tx:        func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) },
		metrics:   metrics,
		logger:    logger.With().Str("component", "reminder").Logger(),
		now:       time.Now,
	}
}

// SetTxRunner makes follow-ups atomic. Without one, the completion of the
// source reminder and the creation of the follow-up run independently.
func (s *Service) SetTxRunner(tx TxRunner) {
	if tx != nil {
		s.tx = tx
	}
}

func validate(r *Reminder) error {
	switch {
	case r.PatientID == uuid.Nil:
		return fmt.Errorf("%w: patient_id is required", ErrInvalid)
	case r.TaskName == "":
		return fmt.Errorf("%w: task_name is required", ErrInvalid)
	case r.IntervalLabel == "":
		return fmt.Errorf("%w: interval_label is required", ErrInvalid)
	case r.StartDate.IsZero():
		return fmt.Errorf("%w: start_date is required", ErrInvalid)
	}
	return nil
}

// schedule derives the due date from the start date and interval label.
func (s *Service) schedule(r *Reminder) {
	out := cadence.Resolve(r.StartDate.Time, r.IntervalLabel)
	r.DueDate = civil.Of(out.Due)
	s.metrics.ObserveInterval(string(out.Interval.Unit), out.Parsed)
	if !out.Parsed {
		s.logger.Debug().
			Str("task_name", r.TaskName).
			Str("interval_label", r.IntervalLabel).
			Msg("interval label not understood, due date is the start date")
	}
}

func (s *Service) CreateReminder(ctx context.Context, r *Reminder) error {
	r.TaskName = strings.TrimSpace(r.TaskName)
	r.IntervalLabel = strings.TrimSpace(r.IntervalLabel)
	if err := validate(r); err != nil {
		return err
	}
	r.Status = StatusPending
	r.PreviousID = nil
	r.CompletedAt = nil
	s.schedule(r)
	if err := s.reminders.Create(ctx, r); err != nil {
		return err
	}
	s.metrics.ReminderEvent("created")
	return nil
}

func (s *Service) GetReminder(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	return s.reminders.GetByID(ctx, id)
}

func (s *Service) ListReminders(ctx context.Context, filter ListFilter, limit, offset int) ([]*Reminder, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: status must be %s or %s", ErrInvalid, StatusPending, StatusDone)
	}
	return s.reminders.List(ctx, filter, limit, offset)
}

func (s *Service) ListAllReminders(ctx context.Context) ([]*Reminder, error) {
	return s.reminders.ListAll(ctx)
}

func (s *Service) nextStage(ctx context.Context, r *Reminder) (*string, bool) {
	next, ok := cadence.NextStage(ctx, s.stages, r.TaskName, r.IntervalLabel)
	if !ok {
		return nil, false
	}
	return &next, true
}

// CompleteReminder marks a pending reminder done. Completion is terminal.
func (s *Service) CompleteReminder(ctx context.Context, id uuid.UUID) (*CompletionResult, error) {
	r, err := s.reminders.Complete(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	s.metrics.ReminderEvent("completed")
	res := &CompletionResult{Reminder: r}
	res.NextStage, res.CanAdvance = s.nextStage(ctx, r)
	return res, nil
}

// FollowUp schedules a new reminder after an existing one. A pending source
// reminder is completed first. Each reminder has at most one follow-up.
func (s *Service) FollowUp(ctx context.Context, id uuid.UUID, req FollowUpRequest) (*Reminder, error) {
	if req.Action != ActionRepeat && req.Action != ActionAdvance {
		return nil, ErrInvalidAction
	}

	var created *Reminder
	err := s.tx(ctx, func(ctx context.Context) error {
		src, err := s.reminders.GetByID(ctx, id)
		if err != nil {
			return err
		}
		switch _, err := s.reminders.FollowUpOf(ctx, id); {
		case err == nil:
			return ErrAlreadyFollowedUp
		case !errors.Is(err, ErrNotFound):
			return fmt.Errorf("look up follow-up of %s: %w", id, err)
		}

		label := src.IntervalLabel
		if req.Action == ActionAdvance {
			next, ok := s.nextStage(ctx, src)
			if !ok {
				return ErrNoNextStage
			}
			label = *next
		}

		if !src.Done() {
			if src, err = s.reminders.Complete(ctx, id, s.now()); err != nil {
				return fmt.Errorf("complete reminder %s: %w", id, err)
			}
			s.metrics.ReminderEvent("completed")
		}

		start := src.DueDate
		if req.StartDate != nil && !req.StartDate.IsZero() {
			start = *req.StartDate
		}
		prev := src.ID
		r := &Reminder{
			PatientID:     src.PatientID,
			TaskName:      src.TaskName,
			StartDate:     start,
			IntervalLabel: label,
			Status:        StatusPending,
			Note:          req.Note,
			PreviousID:    &prev,
		}
		s.schedule(r)
		if err := s.reminders.Create(ctx, r); err != nil {
			return err
		}
		created = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ReminderEvent("follow_up_" + string(req.Action))
	return created, nil
}

// Reset deletes every reminder and returns how many were removed.
func (s *Service) Reset(ctx context.Context) (int64, error) {
	n, err := s.reminders.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Warn().Int64("deleted", n).Msg("all reminders deleted")
	s.metrics.ReminderEvent("reset")
	return n, nil
}

// PreviewDueDate runs the interval calculator without storing anything.
func (s *Service) PreviewDueDate(start civil.Date, label string) DuePreview {
	out := cadence.Resolve(start.Time, label)
	s.metrics.ObserveInterval(string(out.Interval.Unit), out.Parsed)
	p := DuePreview{
		StartDate: start,
		Interval:  label,
		DueDate:   civil.Of(out.Due),
		Parsed:    out.Parsed,
	}
	if out.Parsed {
		p.Unit = string(out.Interval.Unit)
		p.Magnitude = out.Interval.N
	}
	return p
}

func urgency(days, dueSoonDays int) Urgency {
	switch {
	case days < 0:
		return UrgencyOverdue
	case days <= dueSoonDays:
		return UrgencyDueSoon
	}
	return UrgencyUpcoming
}

type stageKey struct{ task, label string }

func stageKeyOf(r *Reminder) stageKey {
	return stageKey{r.TaskName, strings.ToLower(strings.TrimSpace(r.IntervalLabel))}
}

// Dashboard groups pending reminders by facility as of the given date.
// Reminders whose patient no longer exists are listed under
// patient.UnassignedFacility.
func (s *Service) Dashboard(ctx context.Context, asOf civil.Date, dueSoonDays int) (*Dashboard, error) {
	pending, err := s.reminders.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dashboard: %w", err)
	}

	var ids []uuid.UUID
	seenPatient := make(map[uuid.UUID]bool)
	type advance struct {
		stage *string
		ok    bool
	}
	seenStage := make(map[stageKey]bool)
	var lookups []*Reminder
	for _, r := range pending {
		if !seenPatient[r.PatientID] {
			seenPatient[r.PatientID] = true
			ids = append(ids, r.PatientID)
		}
		if key := stageKeyOf(r); !seenStage[key] {
			seenStage[key] = true
			lookups = append(lookups, r)
		}
	}

	byID := map[uuid.UUID]*patient.Patient{}
	resolved := make([]advance, len(lookups))
	g, gctx := errgroup.WithContext(ctx)
	if len(ids) > 0 {
		g.Go(func() error {
			var err error
			byID, err = s.patients.GetPatients(gctx, ids)
			return err
		})
	}
	g.Go(func() error {
		for i, r := range lookups {
			resolved[i].stage, resolved[i].ok = s.nextStage(gctx, r)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load dashboard: %w", err)
	}
	stages := make(map[stageKey]advance, len(lookups))
	for i, r := range lookups {
		stages[stageKeyOf(r)] = resolved[i]
	}
	groups := make(map[string]*FacilityGroup)

	d := &Dashboard{AsOf: asOf, DueSoonDays: dueSoonDays, Facilities: []FacilityGroup{}}
	for _, r := range pending {
		item := DashboardItem{Reminder: r}
		facility := patient.UnassignedFacility
		if p, ok := byID[r.PatientID]; ok {
			item.PatientName = p.Name
			item.Location = p.Location()
			facility = p.Facility
		}

		item.DaysUntilDue = asOf.DaysUntil(r.DueDate)
		item.Urgency = urgency(item.DaysUntilDue, dueSoonDays)

		ns := stages[stageKeyOf(r)]
		item.NextStage, item.CanAdvance = ns.stage, ns.ok

		grp, ok := groups[facility]
		if !ok {
			grp = &FacilityGroup{Facility: facility}
			groups[facility] = grp
		}
		grp.Items = append(grp.Items, item)
		switch item.Urgency {
		case UrgencyOverdue:
			grp.Overdue++
			d.Overdue++
		case UrgencyDueSoon:
			grp.DueSoon++
			d.DueSoon++
		}
		d.Total++
	}

	for _, grp := range groups {
		sort.SliceStable(grp.Items, func(i, j int) bool {
			a, b := grp.Items[i], grp.Items[j]
			if !a.DueDate.Equal(b.DueDate) {
				return a.DueDate.Before(b.DueDate)
			}
			return a.PatientName < b.PatientName
		})
		d.Facilities = append(d.Facilities, *grp)
	}
	sort.Slice(d.Facilities, func(i, j int) bool {
		return d.Facilities[i].Facility < d.Facilities[j].Facility
	})
	return d, nil
}
