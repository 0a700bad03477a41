// Package resources reads effort estimates from documents and assigns
// them to created tasks.
package resources

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/xuri/excelize/v2"

	"github.com/hochfrequenz/project-tracker/internal/domain"
)

// ErrNoTable is returned when a document contains no recognizable effort table
var ErrNoTable = errors.New("no effort table found")

// Parser extracts effort rows from an effort document
type Parser struct{}

// Parse reads the rows of the first effort table in doc. Spreadsheets are
// read sheet by sheet, CSV files as a whole and other text as markdown
// pipe tables.
func (Parser) Parse(_ context.Context, doc *domain.Document) ([]domain.EffortRow, error) {
	var tables [][][]string
	switch {
	case strings.Contains(doc.MIME, "spreadsheetml"):
		sheets, err := sheetTables(doc.Raw)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", doc.Name)
		}
		tables = sheets
	case strings.Contains(doc.MIME, "csv") || strings.HasSuffix(strings.ToLower(doc.Name), ".csv"):
		r := csv.NewReader(strings.NewReader(doc.Text))
		r.FieldsPerRecord = -1
		r.TrimLeadingSpace = true
		records, err := r.ReadAll()
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", doc.Name)
		}
		tables = append(tables, records)
	default:
		tables = pipeTables(doc.Text)
	}

	for _, table := range tables {
		if rows, ok := readTable(table); ok {
			return rows, nil
		}
	}
	return nil, errors.Wrapf(ErrNoTable, "%s", doc.Name)
}

type columns struct {
	name, assignee, hours, confidence int
}

var headerAliases = map[string][]string{
	"name":       {"name", "task", "workstream", "item", "work package", "title"},
	"assignee":   {"assignee", "owner", "resource", "person", "responsible"},
	"hours":      {"hours", "effort", "estimate", "effort (h)", "hours estimate", "estimated hours"},
	"confidence": {"confidence", "certainty", "probability"},
}

func findColumns(header []string) (columns, bool) {
	cols := columns{name: -1, assignee: -1, hours: -1, confidence: -1}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for field, aliases := range headerAliases {
			for _, alias := range aliases {
				if h != alias {
					continue
				}
				switch field {
				case "name":
					if cols.name < 0 {
						cols.name = i
					}
				case "assignee":
					if cols.assignee < 0 {
						cols.assignee = i
					}
				case "hours":
					if cols.hours < 0 {
						cols.hours = i
					}
				case "confidence":
					if cols.confidence < 0 {
						cols.confidence = i
					}
				}
			}
		}
	}
	return cols, cols.name >= 0 && cols.hours >= 0
}

// readTable finds the header row and converts the rows below it
func readTable(table [][]string) ([]domain.EffortRow, bool) {
	for i, header := range table {
		cols, ok := findColumns(header)
		if !ok {
			continue
		}
		var rows []domain.EffortRow
		for _, rec := range table[i+1:] {
			name := cell(rec, cols.name)
			if name == "" {
				continue
			}
			hours, ok := parseHours(cell(rec, cols.hours))
			if !ok {
				continue
			}
			conf, _ := parseConfidence(cell(rec, cols.confidence))
			rows = append(rows, domain.EffortRow{
				Name:       name,
				Assignee:   cell(rec, cols.assignee),
				Hours:      hours,
				Confidence: conf,
			})
		}
		return rows, true
	}
	return nil, false
}

func cell(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}

// parseHours accepts "12", "12.5", "12h", "12 hours" and "1.5d" (8h days)
func parseHours(s string) (float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	factor := 1.0
	for _, suffix := range []string{"hours", "hrs", "hr", "h"} {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSuffix(s, suffix)
			break
		}
	}
	for _, suffix := range []string{"days", "day", "d"} {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSuffix(s, suffix)
			factor = 8
			break
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(s, ",", ".")), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v * factor, true
}

// parseConfidence accepts fractions in [0,1] and percentages
func parseConfidence(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	percent := strings.HasSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
	if err != nil {
		return 0, false
	}
	if percent || v > 1 {
		v /= 100
	}
	if v < 0 || v > 1 {
		return 0, false
	}
	return v, true
}

func sheetTables(data []byte) ([][][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tables [][][]string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, errors.Wrapf(err, "sheet %s", sheet)
		}
		tables = append(tables, rows)
	}
	return tables, nil
}

// pipeTables splits markdown pipe tables out of text. Separator rows such
// as |---|---| are dropped.
func pipeTables(text string) [][][]string {
	var tables [][][]string
	var current [][]string
	flush := func() {
		if len(current) > 0 {
			tables = append(tables, current)
			current = nil
		}
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "|") {
			flush()
			continue
		}
		cells := strings.Split(strings.Trim(line, "|"), "|")
		if isSeparator(cells) {
			continue
		}
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		current = append(current, cells)
	}
	flush()
	return tables
}

func isSeparator(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(strings.TrimSpace(c), ":-") != "" {
			return false
		}
	}
	return true
}
