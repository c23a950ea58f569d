package testutil

import (
	"testing"

	"github.com/nsafar1/vbmgrid/internal/model"
	"github.com/stretchr/testify/require"
)

// AssertStatuses checks the status of every outcome of one stage, keyed by
// subject. Each subject in want must appear exactly once.
func AssertStatuses(t *testing.T, outcomes []model.Outcome, stage string, want map[model.SubjectID]model.Status) {
	t.Helper()
	got := make(map[model.SubjectID]model.Status)
	for _, o := range outcomes {
		if o.Stage != stage {
			continue
		}
		_, dup := got[o.Subject]
		require.False(t, dup, "subject %s has more than one %s outcome", o.Subject, stage)
		got[o.Subject] = o.Status
	}
	require.Equal(t, want, got, "unexpected %s outcomes", stage)
}
