// SPDX-License-Identifier: MIT
//
// This file defines the subject identifier.
package model

import (
	"fmt"
	"strings"
)

// SubjectID uniquely identifies one participant in the cohort.
type SubjectID string

// ParseSubjectID trims surrounding whitespace and reports whether anything
// is left.
func ParseSubjectID(raw string) (SubjectID, bool) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", false
	}
	return SubjectID(id), true
}

// Validate rejects IDs that cannot be used as a single file name component.
func (id SubjectID) Validate() error {
	s := string(id)
	if strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("subject ID %q contains a path separator", s)
	}
	if s == "." || s == ".." {
		return fmt.Errorf("subject ID %q is not a valid file name component", s)
	}
	return nil
}

// String implements fmt.Stringer.
func (id SubjectID) String() string {
	return string(id)
}
