// Package phenotype reads the subject covariate table and aligns it with
// the aggregated tensor.
package phenotype

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/nsafar1/vbmgrid/internal/config"
	"github.com/nsafar1/vbmgrid/internal/model"
)

// Row holds one subject's covariates. Sex is recoded to 0 or 1. Age and
// Volume are NaN when the cell is empty.
type Row struct {
	Subject model.SubjectID
	Group   string
	Sex     int
	Age     float64
	Volume  float64
}

// Table is the phenotype table in file order. A keyed table carries a
// subject ID on every row and is joined by ID; an unkeyed one is aligned by
// position.
type Table struct {
	Keyed bool
	Rows  []Row
}

// DefaultSexCodes is used when the pipeline file declares no sex codes.
// Matching is case-insensitive.
var DefaultSexCodes = map[string]int{
	"m": 1, "male": 1, "1": 1,
	"f": 0, "female": 0, "0": 0,
}

// Load reads a CSV phenotype table with a header row.
func Load(path string, spec *config.Phenotype) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open phenotype table: %w", err)
	}
	defer f.Close()

	table, err := Read(f, spec)
	if err != nil {
		return nil, fmt.Errorf("phenotype table %s: %w", path, err)
	}
	return table, nil
}

// Read parses a phenotype table from r.
func Read(r io.Reader, spec *config.Phenotype) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("missing header row")
	}
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	column := func(name string) (int, error) {
		i, ok := index[name]
		if !ok {
			return 0, fmt.Errorf("column %q not found in header", name)
		}
		return i, nil
	}

	keyed := spec.SubjectColumn != ""
	var cols [5]int
	names := [5]string{spec.SubjectColumn, spec.GroupColumn, spec.SexColumn, spec.AgeColumn, spec.VolumeColumn}
	for i, name := range names {
		if i == 0 && !keyed {
			continue
		}
		if cols[i], err = column(name); err != nil {
			return nil, err
		}
	}
	codes := newSexCodes(spec.SexCodes)

	table := &Table{Keyed: keyed}
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		cell := func(i int) (string, error) {
			if i >= len(record) {
				return "", fmt.Errorf("row %d: missing column %d", line, i+1)
			}
			return strings.TrimSpace(record[i]), nil
		}

		var row Row
		var raw [5]string
		for i := range names {
			if i == 0 && !keyed {
				continue
			}
			if raw[i], err = cell(cols[i]); err != nil {
				return nil, err
			}
		}
		if keyed {
			id, ok := model.ParseSubjectID(raw[0])
			if !ok {
				return nil, fmt.Errorf("row %d: empty subject ID", line)
			}
			row.Subject = id
		}
		row.Group = raw[1]
		if row.Sex, err = codes.recode(raw[2]); err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		if row.Age, err = parseNumber(raw[3]); err != nil {
			return nil, fmt.Errorf("row %d: age: %w", line, err)
		}
		if row.Volume, err = parseNumber(raw[4]); err != nil {
			return nil, fmt.Errorf("row %d: volume: %w", line, err)
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

type sexCodes struct {
	exact map[string]int
	fold  map[string]int
}

func newSexCodes(configured map[string]int) sexCodes {
	if len(configured) == 0 {
		configured = DefaultSexCodes
	}
	c := sexCodes{exact: configured, fold: make(map[string]int, len(configured))}
	for k, v := range configured {
		c.fold[strings.ToLower(k)] = v
	}
	return c
}

func (c sexCodes) recode(raw string) (int, error) {
	if v, ok := c.exact[raw]; ok {
		return v, nil
	}
	if v, ok := c.fold[strings.ToLower(raw)]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("unknown sex code %q", raw)
}

func parseNumber(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
