package matrix

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nsafar1/vbmgrid/internal/model"
	"github.com/nsafar1/vbmgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestRead_Layouts(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		src  string
		opts LoadOptions
		want []float64
	}{
		"header row": {
			src:  "a,b\n1,2\n3,4\n",
			opts: DefaultLoadOptions,
			want: []float64{1, 2, 3, 4},
		},
		"header row and index column": {
			src:  ",lh_bankssts,lh_caudal\nlh_bankssts,0, 0.25\nlh_caudal,0.25,0\n",
			opts: LoadOptions{HeaderRows: 1, IndexColumns: 1},
			want: []float64{0, 0.25, 0.25, 0},
		},
		"no header": {
			src:  "1,2\n3,4\n",
			opts: LoadOptions{},
			want: []float64{1, 2, 3, 4},
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			m, err := Read("m.csv", strings.NewReader(tc.src), 2, tc.opts)
			require.NoError(t, err)
			assert.Equal(t, tc.want, m.RawMatrix().Data)
		})
	}
}

func TestRead_MissingValuesAreNaN(t *testing.T) {
	m, err := Read("m.csv", strings.NewReader("h,h\n,NaN\n1,nan\n"), 2, DefaultLoadOptions)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(m.At(0, 0)))
	assert.True(t, math.IsNaN(m.At(0, 1)))
	assert.Equal(t, 1.0, m.At(1, 0))
	assert.True(t, math.IsNaN(m.At(1, 1)))
}

func TestRead_Failures(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		src        string
		kind       FailureKind
		rows, cols int
	}{
		"too many rows":   {src: "h\n1,2\n3,4\n5,6\n", kind: KindShape, rows: 3, cols: 2},
		"too few columns": {src: "h\n1\n2\n", kind: KindShape, rows: 2, cols: 1},
		"empty":           {src: "h\n", kind: KindShape, rows: 0, cols: 0},
		"ragged":          {src: "h\n1,2\n3\n", kind: KindRagged, rows: 2, cols: 2},
		"non numeric":     {src: "h\n1,2\nx,4\n", kind: KindNonNumeric, rows: 1, cols: 2},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := Read("m.csv", strings.NewReader(tc.src), 2, DefaultLoadOptions)
			var vf *ValidationFailure
			require.ErrorAs(t, err, &vf)
			assert.Equal(t, tc.kind, vf.Kind)
			assert.Equal(t, tc.rows, vf.Rows)
			assert.Equal(t, tc.cols, vf.Cols)
			assert.Equal(t, "m.csv", vf.Path)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.csv")
	_, err := Load(path, 2, DefaultLoadOptions)
	var vf *ValidationFailure
	require.ErrorAs(t, err, &vf)
	assert.Equal(t, KindMissing, vf.Kind)
}

func TestAggregate_ExcludesInvalidEntries(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{
		"A.csv": "h,h\n1,1\n1,1\n",
		"B.csv": "h,h,h\n1,1,1\n1,1,1\n1,1,1\n",
		"C.csv": "h,h\n3,3\n3,3\n",
		"E.csv": "h,h\n5,5\n5,5\n",
	})
	entries := []Entry{
		{Subject: "A", Path: filepath.Join(dir, "A.csv")},
		{Subject: "B", Path: filepath.Join(dir, "B.csv")},
		{Subject: "C", Path: filepath.Join(dir, "C.csv")},
		{Subject: "D", Path: filepath.Join(dir, "D.csv")},
		{Subject: "E", Path: filepath.Join(dir, "E.csv")},
		{Subject: "F", Path: filepath.Join(dir, "F.csv"), Err: &ValidationFailure{Kind: KindUpstream, Reason: "stage smooth did not succeed"}},
	}

	// --- Act ---
	tensor, accepted, rejected := Aggregate(context.Background(), entries, 2, DefaultLoadOptions)

	// --- Assert ---
	assert.Equal(t, []int{0, 2, 4}, accepted)
	assert.Equal(t, 3, tensor.Depth())
	assert.Equal(t, []model.SubjectID{"A", "C", "E"}, tensor.Subjects)
	for _, s := range tensor.Slices {
		r, c := s.Dims()
		assert.Equal(t, [2]int{2, 2}, [2]int{r, c})
	}

	require.Len(t, rejected, 3)
	assert.Equal(t, Rejection{Index: 1, Subject: "B", Path: entries[1].Path, Kind: KindShape, Reason: "shape 3x3, expected 2x2", Rows: 3, Cols: 3}, rejected[0])
	assert.Equal(t, KindMissing, rejected[1].Kind)
	assert.Equal(t, model.SubjectID("D"), rejected[1].Subject)
	assert.Equal(t, KindUpstream, rejected[2].Kind)
	assert.Equal(t, 5, rejected[2].Index)
}

func TestSummarize_MeanAndRange(t *testing.T) {
	tensor := &Tensor{
		Dim:      2,
		Subjects: []model.SubjectID{"A", "B", "C"},
		Slices: []*mat.Dense{
			mat.NewDense(2, 2, []float64{1, 1, 1, 1}),
			mat.NewDense(2, 2, []float64{3, 3, 3, 3}),
			mat.NewDense(2, 2, []float64{5, 5, 5, 5}),
		},
	}

	mean, displayRange, err := Summarize(tensor)

	require.NoError(t, err)
	assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{3, 3, 3, 3}), mean))
	assert.Equal(t, 3.0, displayRange)
}

func TestSummarize_DepthOneIsIdentity(t *testing.T) {
	slice := mat.NewDense(3, 3, []float64{0.5, -7.25, 2, 1e-3, 0, -1, 4, 6.5, -0.125})
	tensor := &Tensor{Dim: 3, Subjects: []model.SubjectID{"A"}, Slices: []*mat.Dense{slice}}

	mean, displayRange, err := Summarize(tensor)

	require.NoError(t, err)
	assert.True(t, mat.Equal(slice, mean))
	assert.Equal(t, 7.25, displayRange)
}

func TestSummarize_IgnoresNaN(t *testing.T) {
	nan := math.NaN()
	tensor := &Tensor{
		Dim: 2,
		Slices: []*mat.Dense{
			mat.NewDense(2, 2, []float64{nan, 2, nan, -4}),
			mat.NewDense(2, 2, []float64{nan, 4, 1, nan}),
		},
	}

	mean, displayRange, err := Summarize(tensor)

	require.NoError(t, err)
	assert.True(t, math.IsNaN(mean.At(0, 0)))
	assert.Equal(t, 3.0, mean.At(0, 1))
	assert.Equal(t, 1.0, mean.At(1, 0))
	assert.Equal(t, -4.0, mean.At(1, 1))
	assert.Equal(t, 4.0, displayRange)
}

func TestSummarize_AllNaNHasZeroRange(t *testing.T) {
	nan := math.NaN()
	tensor := &Tensor{Dim: 1, Slices: []*mat.Dense{mat.NewDense(1, 1, []float64{nan})}}

	_, displayRange, err := Summarize(tensor)

	require.NoError(t, err)
	assert.Equal(t, 0.0, displayRange)
}

func TestSummarize_EmptyTensor(t *testing.T) {
	_, _, err := Summarize(&Tensor{Dim: 2})
	assert.ErrorIs(t, err, ErrEmptyTensor)
}
