// Package matrix loads per-subject connectivity matrices, stacks the valid
// ones into a tensor and derives cross-subject summaries.
package matrix

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// FailureKind classifies why a matrix was rejected.
type FailureKind string

const (
	KindMissing    FailureKind = "missing"
	KindUnreadable FailureKind = "unreadable"
	KindNonNumeric FailureKind = "non_numeric"
	KindRagged     FailureKind = "ragged"
	KindShape      FailureKind = "shape"
	// KindUpstream marks a matrix produced by a stage that did not succeed
	// for the subject in this run.
	KindUpstream FailureKind = "upstream"
)

// ValidationFailure reports a per-subject matrix that cannot be used. Rows
// and Cols hold the observed shape after header rows and index columns are
// dropped; Cols is that of the first data row.
type ValidationFailure struct {
	Path   string
	Kind   FailureKind
	Reason string
	Rows   int
	Cols   int
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("matrix %s rejected: %s", e.Path, e.Reason)
}

// LoadOptions describe the table layout around the numeric block.
type LoadOptions struct {
	HeaderRows   int
	IndexColumns int
}

// DefaultLoadOptions match the usual layout with a single header row.
var DefaultLoadOptions = LoadOptions{HeaderRows: 1}

// Load reads a dim x dim numeric table. Empty cells and NaN parse as NaN.
// Every problem is returned as a *ValidationFailure.
func Load(path string, dim int, opts LoadOptions) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ValidationFailure{Path: path, Kind: KindMissing, Reason: "file not found"}
		}
		return nil, &ValidationFailure{Path: path, Kind: KindUnreadable, Reason: err.Error()}
	}
	defer f.Close()
	return Read(path, f, dim, opts)
}

// Read parses a table from r. name is only used in failures.
func Read(name string, r io.Reader, dim int, opts LoadOptions) (*mat.Dense, error) {
	if dim <= 0 {
		return nil, &ValidationFailure{Path: name, Kind: KindShape, Reason: fmt.Sprintf("expected dimension must be positive, got %d", dim)}
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var rows [][]float64
	cols := -1
	for line := 0; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ValidationFailure{Path: name, Kind: KindUnreadable, Reason: err.Error(), Rows: len(rows), Cols: max(cols, 0)}
		}
		if line < opts.HeaderRows {
			continue
		}
		if len(record) <= opts.IndexColumns {
			record = nil
		} else {
			record = record[opts.IndexColumns:]
		}
		if cols < 0 {
			cols = len(record)
		}

		values := make([]float64, len(record))
		for c, cell := range record {
			v, err := parseCell(cell)
			if err != nil {
				return nil, &ValidationFailure{
					Path:   name,
					Kind:   KindNonNumeric,
					Reason: fmt.Sprintf("non-numeric cell %q at data row %d, column %d", cell, len(rows)+1, c+1),
					Rows:   len(rows),
					Cols:   cols,
				}
			}
			values[c] = v
		}
		rows = append(rows, values)
	}
	cols = max(cols, 0)

	for i, row := range rows {
		if len(row) != cols {
			return nil, &ValidationFailure{
				Path:   name,
				Kind:   KindRagged,
				Reason: fmt.Sprintf("data row %d has %d columns, first row has %d", i+1, len(row), cols),
				Rows:   len(rows),
				Cols:   cols,
			}
		}
	}
	if len(rows) != dim || cols != dim {
		return nil, &ValidationFailure{
			Path:   name,
			Kind:   KindShape,
			Reason: fmt.Sprintf("shape %dx%d, expected %dx%d", len(rows), cols, dim, dim),
			Rows:   len(rows),
			Cols:   cols,
		}
	}

	m := mat.NewDense(dim, dim, nil)
	for i, row := range rows {
		m.SetRow(i, row)
	}
	return m, nil
}

func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" || strings.EqualFold(cell, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}
