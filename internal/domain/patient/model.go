package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nptracker/nptracker/pkg/civil"
)

// UnassignedFacility groups reminders whose patient is unknown.
const UnassignedFacility = "Unassigned"

// DefaultDOB is recorded for imported patients without a date of birth.
var DefaultDOB = civil.New(1950, time.January, 1)

// Patient maps to the patient table.
type Patient struct {
	ID        uuid.UUID   `db:"id" json:"id"`
	Name      string      `db:"name" json:"name"`
	Facility  string      `db:"facility" json:"facility"`
	Ward      *string     `db:"ward" json:"ward,omitempty"`
	Room      *string     `db:"room" json:"room,omitempty"`
	DOB       *civil.Date `db:"dob" json:"dob,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}

// Key identifies a patient for duplicate detection: same name at the same
// facility.
type Key struct {
	Name     string
	Facility string
}

func (p *Patient) Key() Key {
	return Key{Name: p.Name, Facility: p.Facility}
}

// Location renders facility, ward and room for display, e.g.
// "Sunshine Care / Ward B / Room 12".
func (p *Patient) Location() string {
	parts := []string{p.Facility}
	if p.Ward != nil && *p.Ward != "" {
		parts = append(parts, "Ward "+*p.Ward)
	}
	if p.Room != nil && *p.Room != "" {
		parts = append(parts, "Room "+*p.Room)
	}
	return strings.Join(parts, " / ")
}

func (p *Patient) normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Facility = strings.TrimSpace(p.Facility)
	p.Ward = trimOptional(p.Ward)
	p.Room = trimOptional(p.Room)
	if p.DOB != nil && p.DOB.IsZero() {
		p.DOB = nil
	}
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// ImportRow is one spreadsheet row offered for import. DOB is the raw cell
// text and may be empty.
type ImportRow struct {
	Name     string
	Facility string
	DOB      string
}

// ImportResult reports what an import did. Skipped counts duplicates of
// existing patients or of earlier rows; Blank counts rows missing a name or
// facility.
type ImportResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Blank   int `json:"blank"`
}
