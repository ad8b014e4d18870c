// Package annotations loads the table of annotated points that patches
// are cut around. The expected layout is the LUNA16 annotations.csv:
//
//	seriesuid,coordX,coordY,coordZ,diameter_mm
//
// Coordinates are physical (mm). Columns are found by header name; a file
// without a recognised header is read positionally as series, x, y, z.
package annotations

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Row is one annotated point.
type Row struct {
	Series string
	Point  r3.Vec
}

// Table holds annotation rows in file order.
type Table struct {
	Rows []Row
}

// Load reads a CSV annotation file.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse annotations %s: %w", path, err)
	}
	return t, nil
}

// Parse reads annotation rows from r.
func Parse(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &Table{}, nil
	}

	cols := [4]int{0, 1, 2, 3}
	if idx, ok := headerColumns(records[0]); ok {
		cols = idx
		records = records[1:]
	}

	t := &Table{Rows: make([]Row, 0, len(records))}
	for n, rec := range records {
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		row, err := parseRow(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n+1, err)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ForSeries returns the rows of one series in file order.
func (t *Table) ForSeries(series string) []Row {
	var rows []Row
	for _, r := range t.Rows {
		if r.Series == series {
			rows = append(rows, r)
		}
	}
	return rows
}

// Series returns the distinct series identifiers in first-seen order.
func (t *Table) Series() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range t.Rows {
		if !seen[r.Series] {
			seen[r.Series] = true
			out = append(out, r.Series)
		}
	}
	return out
}

func headerColumns(header []string) ([4]int, bool) {
	idx := [4]int{-1, -1, -1, -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "seriesuid", "series_id", "series":
			idx[0] = i
		case "coordx", "x":
			idx[1] = i
		case "coordy", "y":
			idx[2] = i
		case "coordz", "z":
			idx[3] = i
		}
	}
	for _, i := range idx {
		if i < 0 {
			return idx, false
		}
	}
	return idx, true
}

var errShortRow = errors.New("too few columns")

func parseRow(rec []string, cols [4]int) (Row, error) {
	for _, c := range cols {
		if c >= len(rec) {
			return Row{}, errShortRow
		}
	}
	var xyz [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[cols[i+1]]), 64)
		if err != nil {
			return Row{}, err
		}
		xyz[i] = v
	}
	return Row{
		Series: strings.TrimSpace(rec[cols[0]]),
		Point:  r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]},
	}, nil
}
