package transfer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"github.com/nptracker/nptracker/internal/domain/patient"
	"github.com/nptracker/nptracker/internal/domain/reminder"
	"github.com/nptracker/nptracker/internal/domain/tasktype"
)

type PatientStore interface {
	ListAllPatients(ctx context.Context) ([]*patient.Patient, error)
	Import(ctx context.Context, rows []patient.ImportRow) (patient.ImportResult, error)
}

type ReminderStore interface {
	ListAllReminders(ctx context.Context) ([]*reminder.Reminder, error)
}

type TaskTypeStore interface {
	ListAllTaskTypes(ctx context.Context) ([]*tasktype.TaskType, error)
}

type Service struct {
	patients  PatientStore
	reminders ReminderStore
	taskTypes TaskTypeStore
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(patients PatientStore, reminders ReminderStore, taskTypes TaskTypeStore, logger zerolog.Logger) *Service {
	return &Service{
		patients:  patients,
		reminders: reminders,
		taskTypes: taskTypes,
		logger:    logger.With().Str("component", "transfer").Logger(),
		now:       time.Now,
	}
}

// BackupFilename names an export taken now.
func (s *Service) BackupFilename() string {
	return BackupFilename(s.now())
}

var (
	reminderHeader = []interface{}{
		"id", "patient_id", "patient_name", "nursing_home", "task_name", "start_date",
		"interval_label", "due_date", "status", "note", "previous_id", "completed_at",
	}
	patientHeader  = []interface{}{"id", "name", "nursing_home", "ward", "room", "dob"}
	taskTypeHeader = []interface{}{"id", "name", "stages"}
)

// Export writes every reminder, patient and task type to a backup workbook,
// one sheet each. Stages are written comma-joined.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	var (
		patients  []*patient.Patient
		reminders []*reminder.Reminder
		taskTypes []*tasktype.TaskType
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		patients, err = s.patients.ListAllPatients(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		reminders, err = s.reminders.ListAllReminders(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		taskTypes, err = s.taskTypes.ListAllTaskTypes(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load export data: %w", err)
	}

	byID := make(map[uuid.UUID]*patient.Patient, len(patients))
	patientRows := [][]interface{}{patientHeader}
	for _, p := range patients {
		byID[p.ID] = p
		dob := ""
		if p.DOB != nil {
			dob = p.DOB.String()
		}
		patientRows = append(patientRows, []interface{}{
			p.ID.String(), p.Name, p.Facility, deref(p.Ward), deref(p.Room), dob,
		})
	}

	reminderRows := [][]interface{}{reminderHeader}
	for _, r := range reminders {
		name, facility := "", patient.UnassignedFacility
		if p, ok := byID[r.PatientID]; ok {
			name, facility = p.Name, p.Facility
		}
		prev, completed := "", ""
		if r.PreviousID != nil {
			prev = r.PreviousID.String()
		}
		if r.CompletedAt != nil {
			completed = r.CompletedAt.UTC().Format(time.RFC3339)
		}
		reminderRows = append(reminderRows, []interface{}{
			r.ID.String(), r.PatientID.String(), name, facility, r.TaskName, r.StartDate.String(),
			r.IntervalLabel, r.DueDate.String(), string(r.Status), deref(r.Note), prev, completed,
		})
	}

	taskTypeRows := [][]interface{}{taskTypeHeader}
	for _, t := range taskTypes {
		taskTypeRows = append(taskTypeRows, []interface{}{t.ID.String(), t.Name, strings.Join(t.Stages, ", ")})
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", SheetReminders); err != nil {
		return err
	}
	for _, name := range []string{SheetPatients, SheetTaskTypes} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}
	if err := writeRows(f, SheetReminders, reminderRows); err != nil {
		return err
	}
	if err := writeRows(f, SheetPatients, patientRows); err != nil {
		return err
	}
	if err := writeRows(f, SheetTaskTypes, taskTypeRows); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info().
		Int("reminders", len(reminders)).
		Int("patients", len(patients)).
		Int("task_types", len(taskTypes)).
		Msg("backup exported")
	return nil
}

// ImportPatients reads an import workbook and adds its new patients.
func (s *Service) ImportPatients(ctx context.Context, r io.Reader) (patient.ImportResult, error) {
	rows, err := ReadPatients(r)
	if err != nil {
		return patient.ImportResult{}, err
	}
	return s.patients.Import(ctx, rows)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
