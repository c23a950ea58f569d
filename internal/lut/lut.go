// Package lut parses FreeSurfer colour look-up tables, which name the
// anatomical regions behind each matrix axis.
package lut

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/nsafar1/vbmgrid/internal/ctxlog"
)

// Region is one labelled structure.
type Region struct {
	Label int
	Name  string
	// RGBA is zero when the line carries no colour.
	RGBA [4]uint8
}

// Table maps label IDs to regions.
type Table map[int]Region

// Load reads the look-up table at path.
func Load(ctx context.Context, path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open look-up table: %w", err)
	}
	defer f.Close()

	table, skipped, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read look-up table %s: %w", path, err)
	}
	ctxlog.FromContext(ctx).Debug("Parsed look-up table.", "path", path, "regions", len(table), "skipped_lines", skipped)
	return table, nil
}

// Read parses "label name [r g b a]" lines. Blank lines, '#' comments and
// lines without an integer label are skipped and counted.
func Read(r io.Reader) (Table, int, error) {
	table := make(Table)
	skipped := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			skipped++
			continue
		}
		label, err := strconv.Atoi(fields[0])
		if err != nil {
			skipped++
			continue
		}
		region := Region{Label: label, Name: fields[1]}
		if len(fields) >= 6 {
			for i := range region.RGBA {
				v, err := strconv.ParseUint(fields[2+i], 10, 8)
				if err != nil {
					region.RGBA = [4]uint8{}
					break
				}
				region.RGBA[i] = uint8(v)
			}
		}
		table[label] = region
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, err
	}
	return table, skipped, nil
}

// Names returns the region names of labels, in the given order.
func (t Table) Names(labels []int) ([]string, error) {
	names := make([]string, len(labels))
	var missing []string
	for i, label := range labels {
		region, ok := t[label]
		if !ok {
			missing = append(missing, strconv.Itoa(label))
			continue
		}
		names[i] = region.Name
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("labels not in look-up table: %s", strings.Join(missing, ", "))
	}
	return names, nil
}
