// SPDX-License-Identifier: MIT
//
// This file defines the typed result of running one subject through one stage.
//
// Why a typed outcome instead of log lines?
//
// Per-subject problems are expected in a cohort: files go missing, an external
// tool crashes on one scan. Recording them as values lets the orchestrator keep
// going, lets tests assert on exact results, and gives the summary printer and
// the run ledger a machine-readable record.
package model

import (
	"fmt"
	"time"
)

// Status is the terminal state of a (subject, stage) pair. The zero value
// is StatusUnknown so that an unset status never reads as success.
type Status int

const (
	StatusUnknown Status = iota
	StatusSuccess
	StatusSkippedMissingInput
	StatusFailed
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSkippedMissingInput:
		return "skipped_missing_input"
	case StatusFailed:
		return "failed"
	case StatusUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus is the inverse of Status.String for terminal statuses.
func ParseStatus(s string) (Status, error) {
	for _, st := range []Status{StatusSuccess, StatusSkippedMissingInput, StatusFailed} {
		if st.String() == s {
			return st, nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown status %q", s)
}

// Outcome is the result of one stage for one subject occurrence.
type Outcome struct {
	Subject SubjectID
	// Position is the index of the subject occurrence in the registry order.
	Position int
	Stage    string
	Status   Status

	// OutputPath is set on success.
	OutputPath string

	// MissingRole and MissingPath are set when Status is
	// StatusSkippedMissingInput. MissingPath is empty when the input was
	// skipped because its upstream stage did not succeed.
	MissingRole string
	MissingPath string

	// Detail describes the failure when Status is StatusFailed.
	Detail   string
	Duration time.Duration
}

// Succeeded reports whether the stage produced its output.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// Success builds a successful outcome.
func Success(subject SubjectID, stage, output string) Outcome {
	return Outcome{Subject: subject, Stage: stage, Status: StatusSuccess, OutputPath: output}
}

// SkippedMissingInput builds an outcome for a stage that was not attempted.
func SkippedMissingInput(subject SubjectID, stage, role, path string) Outcome {
	return Outcome{Subject: subject, Stage: stage, Status: StatusSkippedMissingInput, MissingRole: role, MissingPath: path}
}

// Failed builds an outcome for a stage whose operation did not complete.
func Failed(subject SubjectID, stage, detail string) Outcome {
	return Outcome{Subject: subject, Stage: stage, Status: StatusFailed, Detail: detail}
}
