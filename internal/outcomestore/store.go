// Package outcomestore provides an ephemeral, thread-safe accumulator for the
// outcomes of a run.
//
// # Purpose
//
// Workers record outcomes concurrently while the orchestrator dispatches
// subjects. Once the pool has drained, the orchestrator reads them back in
// registry order to build the report.
//
// # Concurrency Model
//
// The store uses sync.Map: every (position, stage) key is written exactly
// once by the worker that owns the subject, and keys of different subjects
// never contend. sync.Map is optimized for this pattern of disjoint keys.
//
// # Invariant
//
// A key may be recorded only once. A second record for the same subject
// occurrence and stage is rejected, so a report can never contain two
// outcomes for one (subject, stage) pair.
package outcomestore

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nsafar1/vbmgrid/internal/model"
)

// Key identifies one subject occurrence in one stage.
type Key struct {
	Position int
	Stage    string
}

// DuplicateError reports a second record for the same key.
type DuplicateError struct {
	Key Key
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("outcome for position %d, stage %q already recorded", e.Key.Position, e.Key.Stage)
}

// Store is an in-memory outcome accumulator.
type Store struct {
	outcomes sync.Map // Key: Key, Value: model.Outcome
	count    atomic.Int64
}

// New creates a new, empty store.
func New() *Store {
	return &Store{}
}

// Record stores an outcome under its Position and Stage.
func (s *Store) Record(o model.Outcome) error {
	key := Key{Position: o.Position, Stage: o.Stage}
	if _, loaded := s.outcomes.LoadOrStore(key, o); loaded {
		return &DuplicateError{Key: key}
	}
	s.count.Add(1)
	return nil
}

// Get retrieves the outcome recorded for a key.
func (s *Store) Get(position int, stage string) (model.Outcome, bool) {
	v, ok := s.outcomes.Load(Key{Position: position, Stage: stage})
	if !ok {
		return model.Outcome{}, false
	}
	return v.(model.Outcome), true
}

// Len returns the number of recorded outcomes.
func (s *Store) Len() int {
	return int(s.count.Load())
}

// Ordered returns the outcomes of positions 0..n-1 for every stage, subject
// major and in stage order. Keys that were never recorded are omitted.
func (s *Store) Ordered(n int, stages []string) []model.Outcome {
	out := make([]model.Outcome, 0, n*len(stages))
	for pos := 0; pos < n; pos++ {
		for _, stage := range stages {
			if o, ok := s.Get(pos, stage); ok {
				out = append(out, o)
			}
		}
	}
	return out
}
