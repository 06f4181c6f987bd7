package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"harborplan/internal/model"
)

// csvTable maps header names to column positions.
type csvTable struct {
	path string
	cols map[string]int
	rows [][]string
}

func readCSV(path string, required ...string) (*csvTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.Comment = '#'
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: empty file", ErrFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFormat, path, err)
	}
	t := &csvTable{path: path, cols: map[string]int{}}
	for i, h := range header {
		t.cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range required {
		if _, ok := t.cols[c]; !ok {
			return nil, fmt.Errorf("%w: %s: missing column %q", ErrFormat, path, c)
		}
	}
	if t.rows, err = r.ReadAll(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFormat, path, err)
	}
	return t, nil
}

func (t *csvTable) get(row []string, col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// rowErr reports 1-based line numbers counting the header.
func (t *csvTable) rowErr(i int, col string, err error) error {
	return fmt.Errorf("%w: %s line %d: %s: %v", ErrFormat, t.path, i+2, col, err)
}

func (t *csvTable) id(row []string, i int) (int64, error) {
	v := t.get(row, "id")
	if v == "" {
		return int64(i + 1), nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, t.rowErr(i, "id", err)
	}
	return id, nil
}

func (t *csvTable) float(row []string, i int, col string) (float64, error) {
	v, err := strconv.ParseFloat(t.get(row, col), 64)
	if err != nil {
		return 0, t.rowErr(i, col, err)
	}
	return v, nil
}

func (t *csvTable) time(row []string, i int, col string) (*time.Time, error) {
	v := t.get(row, col)
	if v == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, t.rowErr(i, col, err)
	}
	ts = ts.UTC()
	return &ts, nil
}

func readBoatsCSV(path string) ([]model.Boat, error) {
	t, err := readCSV(path, "width", "arrival", "departure")
	if err != nil {
		return nil, err
	}
	out := make([]model.Boat, 0, len(t.rows))
	for i, row := range t.rows {
		b := model.Boat{Name: t.get(row, "name")}
		if b.ID, err = t.id(row, i); err != nil {
			return nil, err
		}
		if b.Width, err = t.float(row, i, "width"); err != nil {
			return nil, err
		}
		arr, err := t.time(row, i, "arrival")
		if err != nil {
			return nil, err
		}
		dep, err := t.time(row, i, "departure")
		if err != nil {
			return nil, err
		}
		if arr == nil || dep == nil {
			return nil, t.rowErr(i, "arrival/departure", errors.New("required"))
		}
		b.Arrival, b.Departure = *arr, *dep
		out = append(out, b)
	}
	return out, nil
}

func readSlotsCSV(path string) ([]model.Slot, error) {
	t, err := readCSV(path, "max_width")
	if err != nil {
		return nil, err
	}
	out := make([]model.Slot, 0, len(t.rows))
	for i, row := range t.rows {
		s := model.Slot{Name: t.get(row, "name"), Type: model.SlotType(strings.ToLower(t.get(row, "type")))}
		if s.ID, err = t.id(row, i); err != nil {
			return nil, err
		}
		if s.MaxWidth, err = t.float(row, i, "max_width"); err != nil {
			return nil, err
		}
		if v := t.get(row, "reserved"); v != "" {
			if s.Reserved, err = strconv.ParseBool(v); err != nil {
				return nil, t.rowErr(i, "reserved", err)
			}
		}
		if s.AvailableFrom, err = t.time(row, i, "available_from"); err != nil {
			return nil, err
		}
		if s.AvailableUntil, err = t.time(row, i, "available_until"); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
