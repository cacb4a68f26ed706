package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nptracker/nptracker/pkg/civil"
)

var (
	ErrNotFound  = errors.New("patient not found")
	ErrDuplicate = errors.New("a patient with this name already exists at this facility")
)

type Service struct {
	patients Repository
	logger   zerolog.Logger
}

func NewService(patients Repository, logger zerolog.Logger) *Service {
	return &Service{patients: patients, logger: logger.With().Str("component", "patient").Logger()}
}

func validate(p *Patient) error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.Facility == "" {
		return fmt.Errorf("facility is required")
	}
	return nil
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	p.normalize()
	if err := validate(p); err != nil {
		return err
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

// GetPatients returns the patients with the given ids keyed by id. Unknown
// ids are simply absent from the map.
func (s *Service) GetPatients(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Patient, error) {
	items, err := s.patients.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	out := make(map[uuid.UUID]*Patient, len(items))
	for _, p := range items {
		out[p.ID] = p
	}
	return out, nil
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	p.normalize()
	if err := validate(p); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

// DeletePatient removes a patient. Reminders referencing the patient are
// kept and show up under the unassigned facility.
func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, facility string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, strings.TrimSpace(facility), limit, offset)
}

func (s *Service) ListAllPatients(ctx context.Context) ([]*Patient, error) {
	return s.patients.ListAll(ctx)
}

// Import adds the rows that name a patient not yet known at their facility.
// Rows without a name or facility are ignored, duplicates of stored patients
// or of earlier rows are skipped, and a missing or unreadable date of birth
// is recorded as DefaultDOB.
func (s *Service) Import(ctx context.Context, rows []ImportRow) (ImportResult, error) {
	var res ImportResult

	existing, err := s.patients.Keys(ctx)
	if err != nil {
		return res, fmt.Errorf("load existing patients: %w", err)
	}

	var fresh []*Patient
	for i, row := range rows {
		p := &Patient{Name: row.Name, Facility: row.Facility}
		p.normalize()
		if p.Name == "" || p.Facility == "" {
			res.Blank++
			continue
		}
		if existing[p.Key()] {
			res.Skipped++
			continue
		}
		existing[p.Key()] = true

		dob := DefaultDOB
		if raw := strings.TrimSpace(row.DOB); raw != "" {
			parsed, err := civil.Parse(raw)
			if err != nil {
				s.logger.Warn().Int("row", i+1).Str("dob", raw).Msg("unreadable date of birth, using default")
			} else {
				dob = parsed
			}
		}
		p.DOB = &dob
		fresh = append(fresh, p)
	}

	if err := s.patients.CreateBatch(ctx, fresh); err != nil {
		return res, fmt.Errorf("insert patients: %w", err)
	}
	res.Added = len(fresh)

	s.logger.Info().Int("added", res.Added).Int("skipped", res.Skipped).Int("blank", res.Blank).Msg("patients imported")
	return res, nil
}
