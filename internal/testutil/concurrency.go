package testutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nsafar1/vbmgrid/internal/model"
	"github.com/nsafar1/vbmgrid/internal/registry"
)

// FakeOperation is the name FakeModule registers under by default.
const FakeOperation = "fake"

// ErrFake is returned by FakeModule for subjects listed in FailFor.
var ErrFake = errors.New("fake transform failed")

// FakeModule is a shared, self-contained operation for orchestration tests.
// It writes a deterministic summary of its inputs to the output path without
// starting any process, and records every call.
type FakeModule struct {
	Name      string
	Sleep     time.Duration
	Exclusive bool
	// Keys are "subject" or "subject/stage".
	FailFor  map[string]bool
	PanicFor map[string]bool
	// NoWriteFor reports success without writing the output.
	NoWriteFor map[string]bool

	mu        sync.Mutex
	calls     []Call
	active    int
	maxActive int
}

// Call records one invocation of the fake operation.
type Call struct {
	Subject model.SubjectID
	Stage   string
	Inputs  map[string]string
	Output  string
	Argv    []string
}

// Register registers the fake operation.
func (m *FakeModule) Register(r *registry.Registry) {
	name := m.Name
	if name == "" {
		name = FakeOperation
	}
	r.RegisterOperation(name, &registry.RegisteredOperation{
		Fn:         m.run,
		Exclusive:  m.Exclusive,
		FreeParams: true,
	})
}

func (m *FakeModule) run(ctx context.Context, req *registry.Request) error {
	m.enter(req)
	defer m.leave()

	if m.Sleep > 0 {
		select {
		case <-time.After(m.Sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if matches(m.PanicFor, req) {
		panic(fmt.Sprintf("fake panic for %s", req.Subject))
	}
	if matches(m.FailFor, req) {
		return ErrFake
	}
	if matches(m.NoWriteFor, req) {
		return nil
	}

	roles := make([]string, 0, len(req.Inputs))
	for role := range req.Inputs {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s)\n", req.Stage, req.Subject)
	for _, role := range roles {
		data, err := os.ReadFile(req.Inputs[role])
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "%s: %s", role, data)
	}
	return os.WriteFile(req.Output, []byte(b.String()), 0o644)
}

func matches(set map[string]bool, req *registry.Request) bool {
	return set[string(req.Subject)] || set[string(req.Subject)+"/"+req.Stage]
}

func (m *FakeModule) enter(req *registry.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Subject: req.Subject, Stage: req.Stage, Inputs: req.Inputs, Output: req.Output, Argv: req.Argv})
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
}

func (m *FakeModule) leave() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active--
}

// Calls returns a copy of the recorded invocations.
func (m *FakeModule) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// MaxConcurrent returns the highest number of simultaneous invocations seen.
func (m *FakeModule) MaxConcurrent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxActive
}
