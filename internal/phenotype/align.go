package phenotype

import (
	"fmt"

	"github.com/nsafar1/vbmgrid/internal/matrix"
	"github.com/nsafar1/vbmgrid/internal/model"
)

// CountMismatchError reports a phenotype table whose size differs from the
// tensor depth. Alignment never truncates or pads.
type CountMismatchError struct {
	Rows  int
	Depth int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("phenotype table has %d rows but %d subject matrices were accepted", e.Rows, e.Depth)
}

// UnmatchedSubjectError reports a tensor slice with no phenotype row.
type UnmatchedSubjectError struct {
	Subject model.SubjectID
}

func (e *UnmatchedSubjectError) Error() string {
	return fmt.Sprintf("no phenotype row for subject %s", e.Subject)
}

// Dataset pairs every tensor slice with its phenotype row: Rows[k] describes
// Tensor.Slices[k] and carries its subject ID.
type Dataset struct {
	Tensor *matrix.Tensor
	Rows   []Row
}

// Align joins the table to the tensor. Keyed tables are joined by subject
// ID, the k-th slice of an ID taking the k-th row with that ID; unkeyed
// tables are paired by position.
func Align(tensor *matrix.Tensor, table *Table) (*Dataset, error) {
	if len(table.Rows) != tensor.Depth() {
		return nil, &CountMismatchError{Rows: len(table.Rows), Depth: tensor.Depth()}
	}

	rows := make([]Row, tensor.Depth())
	if !table.Keyed {
		for k, subject := range tensor.Subjects {
			rows[k] = table.Rows[k]
			rows[k].Subject = subject
		}
		return &Dataset{Tensor: tensor, Rows: rows}, nil
	}

	pending := make(map[model.SubjectID][]Row)
	for _, row := range table.Rows {
		pending[row.Subject] = append(pending[row.Subject], row)
	}
	for k, subject := range tensor.Subjects {
		queue := pending[subject]
		if len(queue) == 0 {
			return nil, &UnmatchedSubjectError{Subject: subject}
		}
		rows[k] = queue[0]
		pending[subject] = queue[1:]
	}
	return &Dataset{Tensor: tensor, Rows: rows}, nil
}
