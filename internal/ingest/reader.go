// Package ingest reads fault record spreadsheets and adds them to the knowledge base.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/rootcause/internal/models"
)

// Column names. All but ColModel are required.
const (
	ColComponent        = "component"
	ColModel            = "model"
	ColFaultDescription = "fault_description"
	ColRootCause        = "root_cause"
	ColCorrectiveAction = "corrective_action"
)

// RequiredColumns must appear in every header row.
var RequiredColumns = []string{ColComponent, ColFaultDescription, ColRootCause, ColCorrectiveAction}

// SupportedExtensions lists the file types ReadFile accepts.
var SupportedExtensions = []string{".csv", ".xlsx"}

var (
	// ErrMissingColumn is returned when a required header is absent.
	ErrMissingColumn = errors.New("missing required column")
	// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// ReadFile reads records from a .csv or .xlsx file.
func ReadFile(path string) ([]models.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Read(filepath.Base(path), f)
}

// Read parses r according to the extension of name.
func Read(name string, r io.Reader) ([]models.Record, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return ReadCSV(r)
	case ".xlsx":
		return ReadXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %q (want .csv or .xlsx)", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// ReadCSV parses a header row followed by record rows. Blank rows are skipped.
func ReadCSV(r io.Reader) ([]models.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}
	return fromRows(rows)
}

// ReadXLSX parses the first sheet of a workbook the same way as ReadCSV.
func ReadXLSX(r io.Reader) ([]models.Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("open Excel: workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) ([]models.Record, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s (file is empty)", ErrMissingColumn, ColComponent)
	}
	header := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := header[h]; !dup {
			header[h] = i
		}
	}
	for _, col := range RequiredColumns {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	cell := func(row []string, col string) string {
		i, ok := header[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
	out := make([]models.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		out = append(out, models.Record{
			Component:        cell(row, ColComponent),
			Model:            cell(row, ColModel),
			FaultDescription: cell(row, ColFaultDescription),
			RootCause:        cell(row, ColRootCause),
			CorrectiveAction: cell(row, ColCorrectiveAction),
		})
	}
	return out, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// IsSupported reports whether path has a readable extension.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
