// Package subjects loads the cohort's subject list.
package subjects

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/nsafar1/vbmgrid/internal/ctxlog"
	"github.com/nsafar1/vbmgrid/internal/model"
)

// MissingListError is returned when the subject list resource does not exist.
type MissingListError struct {
	Path string
}

func (e *MissingListError) Error() string {
	return fmt.Sprintf("subject list not found: %s", e.Path)
}

// InvalidIDError reports a subject list line whose ID cannot name a file.
type InvalidIDError struct {
	Line int
	Err  error
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *InvalidIDError) Unwrap() error { return e.Err }

// Load reads a newline-separated subject list. Each line is trimmed; when a
// line holds comma-separated fields only the first one is used. Blank lines
// are skipped. Order and duplicate IDs are preserved.
func Load(ctx context.Context, path string) ([]model.SubjectID, error) {
	logger := ctxlog.FromContext(ctx)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &MissingListError{Path: path}
		}
		return nil, fmt.Errorf("failed to open subject list %s: %w", path, err)
	}
	defer f.Close()

	ids, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read subject list %s: %w", path, err)
	}
	logger.Debug("Subject list loaded.", "path", path, "count", len(ids))
	return ids, nil
}

// Read parses a subject list from r.
func Read(r io.Reader) ([]model.SubjectID, error) {
	var ids []model.SubjectID
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := scanner.Text()
		if field, _, found := strings.Cut(line, ","); found {
			line = field
		}
		id, ok := model.ParseSubjectID(line)
		if !ok {
			continue
		}
		if err := id.Validate(); err != nil {
			return nil, &InvalidIDError{Line: n, Err: err}
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// Match keeps the primary IDs that also appear in the reference list, in
// primary order, and returns the reference IDs that have no primary
// counterpart, in reference order.
func Match(primary, reference []model.SubjectID) (matched, unmatched []model.SubjectID) {
	inPrimary := make(map[model.SubjectID]struct{}, len(primary))
	for _, id := range primary {
		inPrimary[id] = struct{}{}
	}
	inReference := make(map[model.SubjectID]struct{}, len(reference))
	for _, id := range reference {
		inReference[id] = struct{}{}
		if _, ok := inPrimary[id]; !ok {
			unmatched = append(unmatched, id)
		}
	}
	for _, id := range primary {
		if _, ok := inReference[id]; ok {
			matched = append(matched, id)
		}
	}
	return matched, unmatched
}

// WriteList writes ids one per line under a header line.
func WriteList(path, header string, ids []model.SubjectID) error {
	var b strings.Builder
	if header != "" {
		b.WriteString(header)
		b.WriteByte('\n')
	}
	for _, id := range ids {
		b.WriteString(string(id))
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write subject list %s: %w", path, err)
	}
	return nil
}
