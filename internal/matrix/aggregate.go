package matrix

import (
	"context"
	"errors"

	"github.com/nsafar1/vbmgrid/internal/ctxlog"
	"github.com/nsafar1/vbmgrid/internal/model"
	"gonum.org/v1/gonum/mat"
)

// Entry is one candidate slice of the tensor.
type Entry struct {
	Subject model.SubjectID
	Path    string
	// Err, when set, rejects the entry without reading Path.
	Err *ValidationFailure
}

// Rejection records an entry that was excluded from the tensor.
type Rejection struct {
	// Index is the entry's position in the input sequence.
	Index   int
	Subject model.SubjectID
	Path    string
	Kind    FailureKind
	Reason  string
	Rows    int
	Cols    int
}

// Tensor is the stack of accepted D x D slices. Subjects[k] is the subject
// of Slices[k]. Every slice has shape Dim x Dim.
type Tensor struct {
	Dim      int
	Subjects []model.SubjectID
	Slices   []*mat.Dense
}

// Depth returns the number of slices.
func (t *Tensor) Depth() int {
	return len(t.Slices)
}

// Aggregate loads every entry in order and stacks the valid matrices. It
// returns the tensor, the input indices of the accepted entries and the
// rejections, both in input order. Rejections are never fatal.
func Aggregate(ctx context.Context, entries []Entry, dim int, opts LoadOptions) (*Tensor, []int, []Rejection) {
	logger := ctxlog.FromContext(ctx)
	tensor := &Tensor{Dim: dim}
	var accepted []int
	var rejected []Rejection

	for i, entry := range entries {
		var m *mat.Dense
		var err error
		if entry.Err != nil {
			err = entry.Err
		} else {
			m, err = Load(entry.Path, dim, opts)
		}
		if err != nil {
			var vf *ValidationFailure
			if !errors.As(err, &vf) {
				vf = &ValidationFailure{Path: entry.Path, Kind: KindUnreadable, Reason: err.Error()}
			}
			rejected = append(rejected, Rejection{
				Index:   i,
				Subject: entry.Subject,
				Path:    entry.Path,
				Kind:    vf.Kind,
				Reason:  vf.Reason,
				Rows:    vf.Rows,
				Cols:    vf.Cols,
			})
			logger.Warn("Excluding subject matrix.",
				"subject", entry.Subject,
				"path", entry.Path,
				"reason", vf.Reason,
				"rows", vf.Rows,
				"cols", vf.Cols,
			)
			continue
		}
		tensor.Subjects = append(tensor.Subjects, entry.Subject)
		tensor.Slices = append(tensor.Slices, m)
		accepted = append(accepted, i)
	}

	logger.Info("Matrices aggregated.", "accepted", len(accepted), "rejected", len(rejected), "dim", dim)
	return tensor, accepted, rejected
}
