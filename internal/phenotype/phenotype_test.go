package phenotype

import (
	"math"
	"strings"
	"testing"

	"github.com/nsafar1/vbmgrid/internal/config"
	"github.com/nsafar1/vbmgrid/internal/matrix"
	"github.com/nsafar1/vbmgrid/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func spec(subjectColumn string) *config.Phenotype {
	return &config.Phenotype{
		SubjectColumn: subjectColumn,
		GroupColumn:   "group",
		SexColumn:     "sex",
		AgeColumn:     "age",
		VolumeColumn:  "tiv",
	}
}

func tensorOf(ids ...model.SubjectID) *matrix.Tensor {
	t := &matrix.Tensor{Dim: 1}
	for i, id := range ids {
		t.Subjects = append(t.Subjects, id)
		t.Slices = append(t.Slices, mat.NewDense(1, 1, []float64{float64(i)}))
	}
	return t
}

const keyedCSV = `subject_id,group,sex,age,tiv
B,control,F,31,1450.5
A,patient,male,27.5,1602
C,patient,1,,1500
`

func TestRead_Keyed(t *testing.T) {
	table, err := Read(strings.NewReader(keyedCSV), spec("subject_id"))
	require.NoError(t, err)

	assert.True(t, table.Keyed)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, Row{Subject: "B", Group: "control", Sex: 0, Age: 31, Volume: 1450.5}, table.Rows[0])
	assert.Equal(t, 1, table.Rows[1].Sex)
	assert.Equal(t, 1, table.Rows[2].Sex)
	assert.True(t, math.IsNaN(table.Rows[2].Age), "an empty cell is a missing value")
}

func TestRead_Errors(t *testing.T) {
	testCases := map[string]struct {
		src     string
		spec    *config.Phenotype
		message string
	}{
		"missing column": {
			src:     "subject_id,group,sex,age\nA,x,M,1\n",
			spec:    spec("subject_id"),
			message: `column "tiv" not found`,
		},
		"unknown sex code": {
			src:     "group,sex,age,tiv\nx,U,1,1\n",
			spec:    spec(""),
			message: `row 2: unknown sex code "U"`,
		},
		"bad age": {
			src:     "group,sex,age,tiv\nx,M,old,1\n",
			spec:    spec(""),
			message: "row 2: age",
		},
		"empty subject": {
			src:     "subject_id,group,sex,age,tiv\n ,x,M,1,1\n",
			spec:    spec("subject_id"),
			message: "row 2: empty subject ID",
		},
		"no header": {
			src:     "",
			spec:    spec(""),
			message: "missing header row",
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tc.src), tc.spec)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestRead_ConfiguredSexCodes(t *testing.T) {
	s := spec("")
	s.SexCodes = map[string]int{"2": 0, "1": 1}

	table, err := Read(strings.NewReader("group,sex,age,tiv\nx,2,1,1\nx,1,1,1\n"), s)
	require.NoError(t, err)
	assert.Equal(t, 0, table.Rows[0].Sex)
	assert.Equal(t, 1, table.Rows[1].Sex)

	_, err = Read(strings.NewReader("group,sex,age,tiv\nx,M,1,1\n"), s)
	assert.Error(t, err, "configured codes replace the defaults")
}

func TestAlign_CountMismatch(t *testing.T) {
	table := &Table{Rows: make([]Row, 3)}

	for _, depth := range []int{0, 1, 2, 4, 7} {
		ids := make([]model.SubjectID, depth)
		for i := range ids {
			ids[i] = model.SubjectID(rune('A' + i))
		}
		_, err := Align(tensorOf(ids...), table)

		var mismatch *CountMismatchError
		require.ErrorAs(t, err, &mismatch, "depth %d", depth)
		assert.Equal(t, CountMismatchError{Rows: 3, Depth: depth}, *mismatch)
		assert.Contains(t, err.Error(), "3 rows")
	}
}

func TestAlign_KeyedJoinsByID(t *testing.T) {
	table, err := Read(strings.NewReader(keyedCSV), spec("subject_id"))
	require.NoError(t, err)
	tensor := tensorOf("A", "B", "C")

	ds, err := Align(tensor, table)

	require.NoError(t, err)
	assert.Equal(t, []model.SubjectID{"A", "B", "C"}, []model.SubjectID{ds.Rows[0].Subject, ds.Rows[1].Subject, ds.Rows[2].Subject})
	assert.Equal(t, "patient", ds.Rows[0].Group)
	assert.Equal(t, "control", ds.Rows[1].Group)
	assert.Same(t, tensor, ds.Tensor)
}

func TestAlign_KeyedDuplicatesInOrder(t *testing.T) {
	table := &Table{Keyed: true, Rows: []Row{
		{Subject: "A", Group: "first"},
		{Subject: "B", Group: "b"},
		{Subject: "A", Group: "second"},
	}}

	ds, err := Align(tensorOf("A", "A", "B"), table)

	require.NoError(t, err)
	assert.Equal(t, "first", ds.Rows[0].Group)
	assert.Equal(t, "second", ds.Rows[1].Group)
	assert.Equal(t, "b", ds.Rows[2].Group)
}

func TestAlign_KeyedUnmatched(t *testing.T) {
	table := &Table{Keyed: true, Rows: []Row{{Subject: "A"}, {Subject: "X"}}}

	_, err := Align(tensorOf("A", "B"), table)

	var unmatched *UnmatchedSubjectError
	require.ErrorAs(t, err, &unmatched)
	assert.Equal(t, model.SubjectID("B"), unmatched.Subject)
}

func TestAlign_Positional(t *testing.T) {
	table := &Table{Rows: []Row{{Group: "g1"}, {Group: "g2"}}}

	ds, err := Align(tensorOf("A", "C"), table)

	require.NoError(t, err)
	assert.Equal(t, []Row{{Subject: "A", Group: "g1"}, {Subject: "C", Group: "g2"}}, ds.Rows)
	assert.Empty(t, table.Rows[0].Subject, "the input table is not modified")
}
