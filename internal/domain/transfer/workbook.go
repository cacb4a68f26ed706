// Package transfer moves clinic data in and out of .xlsx workbooks: a full
// backup export, the patient import template and the patient import itself.
package transfer

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nptracker/nptracker/internal/domain/patient"
	"github.com/nptracker/nptracker/pkg/civil"
)

const (
	SheetReminders = "Reminders"
	SheetPatients  = "Patients"
	SheetTaskTypes = "Task Types"
	SheetTemplate  = "Template"

	TemplateFilename = "patient_import_template.xlsx"

	colName     = "name"
	colFacility = "nursing_home"
	colDOB      = "dob"
)

// ErrMissingColumns is returned when an import sheet lacks the name or
// nursing_home header.
var ErrMissingColumns = errors.New("import sheet must have name and nursing_home columns")

// ErrUnreadable wraps failures to open or parse an uploaded workbook.
var ErrUnreadable = errors.New("not a readable .xlsx workbook")

// BackupFilename names an export taken on day t.
func BackupFilename(t time.Time) string {
	return "NP_Backup_" + t.Format(civil.Layout) + ".xlsx"
}

var templateRows = [][]interface{}{
	{colName, colFacility, colDOB},
	{"John Doe", "Sunshine Care", "1950-01-15"},
	{"Jane Smith", "Hilltop View", "1948-03-22"},
}

// WriteTemplate writes the patient import template workbook to w.
func WriteTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetTemplate); err != nil {
		return err
	}
	if err := writeRows(f, SheetTemplate, templateRows); err != nil {
		return err
	}
	return f.Write(w)
}

// writeRows fills sheet from A1 down, one slice per row, with a bold header.
func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return err
	}
	last, err := excelize.ColumnNumberToName(len(rows[0]))
	if err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", last, 18)
}

// ReadPatients reads import rows from the first sheet of an .xlsx workbook.
// Headers are matched case-insensitively; name and nursing_home are required
// and dob is optional. Rows with every cell empty are dropped.
func ReadPatients(r io.Reader) ([]patient.ImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrMissingColumns
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: sheet %q: %v", ErrUnreadable, sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, ErrMissingColumns
	}

	cols := make(map[string]int)
	for i, h := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	nameCol, okName := cols[colName]
	facilityCol, okFacility := cols[colFacility]
	if !okName || !okFacility {
		return nil, ErrMissingColumns
	}
	dobCol, hasDOB := cols[colDOB]

	var out []patient.ImportRow
	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		ir := patient.ImportRow{
			Name:     cell(row, nameCol),
			Facility: cell(row, facilityCol),
		}
		if hasDOB {
			ir.DOB = dobText(cell(row, dobCol))
		}
		out = append(out, ir)
	}
	return out, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// dobText reduces a date of birth cell to YYYY-MM-DD where it can. Cells
// typed as dates arrive as Excel serial numbers; text cells keep only their
// date part. Anything else is passed through for the importer to reject.
func dobText(v string) string {
	if v == "" {
		return ""
	}
	if d, err := civil.Parse(v); err == nil {
		return d.String()
	}
	if serial, err := strconv.ParseFloat(v, 64); err == nil {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return civil.Of(t).String()
		}
	}
	return v
}
