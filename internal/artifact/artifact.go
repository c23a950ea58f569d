// Package artifact persists the aggregate result of a run: the tensor, the
// aligned phenotype rows and the derived summary, as one MessagePack bundle.
//
// The encoding is deterministic. Map keys are sorted and the bundle holds
// no timestamps or run IDs, so unchanged inputs produce identical bytes.
package artifact

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nsafar1/vbmgrid/internal/matrix"
	"github.com/nsafar1/vbmgrid/internal/phenotype"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"
)

// FormatVersion is bumped whenever the bundle layout changes.
const FormatVersion = 1

// Artifact is the persisted bundle. Matrices are stored row-major.
type Artifact struct {
	Version      int         `msgpack:"version"`
	Dim          int         `msgpack:"dim"`
	Subjects     []string    `msgpack:"subjects"`
	Slices       [][]float64 `msgpack:"slices"`
	Phenotype    []Phenotype `msgpack:"phenotype"`
	Mean         []float64   `msgpack:"mean"`
	DisplayRange float64     `msgpack:"display_range"`
	Labels       []int       `msgpack:"labels,omitempty"`
	Regions      []string    `msgpack:"regions,omitempty"`
	Rejections   []Rejection `msgpack:"rejections"`
}

// Phenotype is one aligned covariate row.
type Phenotype struct {
	Subject string  `msgpack:"subject"`
	Group   string  `msgpack:"group"`
	Sex     int     `msgpack:"sex"`
	Age     float64 `msgpack:"age"`
	Volume  float64 `msgpack:"volume"`
}

// Rejection mirrors matrix.Rejection.
type Rejection struct {
	Index   int    `msgpack:"index"`
	Subject string `msgpack:"subject"`
	Path    string `msgpack:"path"`
	Kind    string `msgpack:"kind"`
	Reason  string `msgpack:"reason"`
	Rows    int    `msgpack:"rows"`
	Cols    int    `msgpack:"cols"`
}

// Regions names the tensor axes.
type Regions struct {
	Labels []int
	Names  []string
}

// New assembles an artifact. regions may be nil.
func New(ds *phenotype.Dataset, mean *mat.Dense, displayRange float64, rejections []matrix.Rejection, regions *Regions) *Artifact {
	a := &Artifact{
		Version:      FormatVersion,
		Dim:          ds.Tensor.Dim,
		Subjects:     make([]string, 0, ds.Tensor.Depth()),
		Slices:       make([][]float64, 0, ds.Tensor.Depth()),
		Phenotype:    make([]Phenotype, 0, len(ds.Rows)),
		Mean:         flatten(mean),
		DisplayRange: displayRange,
		Rejections:   make([]Rejection, 0, len(rejections)),
	}
	for k, slice := range ds.Tensor.Slices {
		a.Subjects = append(a.Subjects, string(ds.Tensor.Subjects[k]))
		a.Slices = append(a.Slices, flatten(slice))
	}
	for _, row := range ds.Rows {
		a.Phenotype = append(a.Phenotype, Phenotype{
			Subject: string(row.Subject),
			Group:   row.Group,
			Sex:     row.Sex,
			Age:     row.Age,
			Volume:  row.Volume,
		})
	}
	for _, r := range rejections {
		a.Rejections = append(a.Rejections, Rejection{
			Index:   r.Index,
			Subject: string(r.Subject),
			Path:    r.Path,
			Kind:    string(r.Kind),
			Reason:  r.Reason,
			Rows:    r.Rows,
			Cols:    r.Cols,
		})
	}
	if regions != nil {
		a.Labels = regions.Labels
		a.Regions = regions.Names
	}
	return a
}

func flatten(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}

// Slice returns the k-th tensor slice as a matrix.
func (a *Artifact) Slice(k int) *mat.Dense {
	return mat.NewDense(a.Dim, a.Dim, append([]float64(nil), a.Slices[k]...))
}

// Encode serializes the artifact.
func Encode(a *Artifact) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(a); err != nil {
		return nil, fmt.Errorf("failed to encode artifact: %w", err)
	}
	return buf.Bytes(), nil
}

// Write encodes a and replaces path atomically.
func Write(path string, a *Artifact) error {
	data, err := Encode(a)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return nil
}

// Read decodes the artifact at path.
func Read(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	var a Artifact
	if err := msgpack.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode artifact %s: %w", path, err)
	}
	if a.Version != FormatVersion {
		return nil, fmt.Errorf("artifact %s has format version %d, expected %d", path, a.Version, FormatVersion)
	}
	return &a, nil
}
