package stagerunner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	vbhcl "github.com/nsafar1/vbmgrid/internal/hcl"
	"github.com/nsafar1/vbmgrid/internal/model"
	"github.com/nsafar1/vbmgrid/internal/paths"
	"github.com/nsafar1/vbmgrid/internal/registry"
	"github.com/nsafar1/vbmgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	runner *Runner
	fake   *testutil.FakeModule
	stages map[string]*model.StageSpec
	data   string
	out    string
	seen   *recordingObserver
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []model.Outcome
}

func (o *recordingObserver) ObserveOutcome(out model.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, out)
}

func newFixture(t *testing.T, fake *testutil.FakeModule, tweak func(stages []*model.StageSpec)) *fixture {
	t.Helper()
	root := t.TempDir()
	data := filepath.Join(root, "data")
	out := filepath.Join(root, "out")
	testutil.WriteFiles(t, data, map[string]string{
		"mwp1A_T1w.nii": "gm-A\n",
		"y_A_T1w.nii":   "def-A\n",
		"mwp1B_T1w.nii": "gm-B\n",
		"mwp1C_T1w.nii": "gm-C\n",
		"y_C_T1w.nii":   "def-C\n",
		"mwp1D_T1w.nii": "gm-D\n",
		"y_D_T1w.nii":   "def-D\n",
	})

	stages := []*model.StageSpec{
		{
			Name:         "normalize",
			Operation:    testutil.FakeOperation,
			OutputPrefix: "w",
			Inputs: []*model.InputSpec{
				{Role: "gray_matter", Dir: data, Prefix: "mwp1", Suffix: "_T1w.nii"},
				{Role: "deformation_field", Dir: data, Prefix: "y_", Suffix: "_T1w.nii"},
			},
		},
		{
			Name:         "smooth",
			Operation:    testutil.FakeOperation,
			OutputPrefix: "s8",
			Inputs:       []*model.InputSpec{{Role: "normalized", FromStage: "normalize"}},
		},
	}
	if tweak != nil {
		tweak(stages)
	}

	resolver, err := paths.New(out, stages, nil)
	require.NoError(t, err)
	reg := registry.New()
	fake.Register(reg)
	conv := vbhcl.NewConverter()
	bindings, err := reg.Bind(context.Background(), stages, conv)
	require.NoError(t, err)

	seen := &recordingObserver{}
	return &fixture{
		runner: New(Deps{Resolver: resolver, Bindings: bindings, Converter: conv, Observer: seen}),
		fake:   fake,
		stages: map[string]*model.StageSpec{"normalize": stages[0], "smooth": stages[1]},
		data:   data,
		out:    out,
		seen:   seen,
	}
}

func (f *fixture) run(subject model.SubjectID, stage string, upstream map[string]model.Status) model.Outcome {
	return f.runner.Run(testutil.QuietContext(), subject, f.stages[stage], upstream)
}

func TestRun_SuccessWritesExactlyOneFile(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	f := newFixture(t, &testutil.FakeModule{}, nil)

	// --- Act ---
	got := f.run("A", "normalize", nil)

	// --- Assert ---
	require.Equal(t, model.StatusSuccess, got.Status, got.Detail)
	assert.Equal(t, filepath.Join(f.out, "wmwp1A_T1w.nii"), got.OutputPath)
	assert.Equal(t, []string{"wmwp1A_T1w.nii"}, testutil.ListFiles(t, f.out))
	data, err := os.ReadFile(got.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "normalize(A)\ndeformation_field: def-A\ngray_matter: gm-A\n", string(data))
	assert.Positive(t, got.Duration)
	require.Len(t, f.seen.outcomes, 1)
	assert.Equal(t, got, f.seen.outcomes[0])
}

func TestRun_MissingInputIsSkipped(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &testutil.FakeModule{}, nil)

	got := f.run("B", "normalize", nil)

	assert.Equal(t, model.StatusSkippedMissingInput, got.Status)
	assert.Equal(t, "deformation_field", got.MissingRole)
	assert.Equal(t, filepath.Join(f.data, "y_B_T1w.nii"), got.MissingPath)
	assert.Empty(t, f.fake.Calls(), "nothing may be attempted")
	assert.Empty(t, testutil.ListFiles(t, f.out))
}

func TestRun_UpstreamFailureCascadesEvenWithStaleOutput(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &testutil.FakeModule{}, nil)
	testutil.WriteFiles(t, f.out, map[string]string{"wmwp1A_T1w.nii": "stale"})

	for _, upstream := range []map[string]model.Status{
		nil,
		{"normalize": model.StatusFailed},
		{"normalize": model.StatusSkippedMissingInput},
	} {
		got := f.run("A", "smooth", upstream)
		assert.Equal(t, model.StatusSkippedMissingInput, got.Status)
		assert.Equal(t, "normalized", got.MissingRole)
		assert.Empty(t, got.MissingPath)
	}
	assert.Empty(t, f.fake.Calls())
	assert.Equal(t, []string{"wmwp1A_T1w.nii"}, testutil.ListFiles(t, f.out))
}

func TestRun_ChainedStages(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &testutil.FakeModule{}, nil)

	first := f.run("A", "normalize", nil)
	second := f.run("A", "smooth", map[string]model.Status{"normalize": first.Status})

	require.True(t, second.Succeeded(), second.Detail)
	assert.Equal(t, filepath.Join(f.out, "s8wmwp1A_T1w.nii"), second.OutputPath)
	assert.Equal(t, []string{"s8wmwp1A_T1w.nii", "wmwp1A_T1w.nii"}, testutil.ListFiles(t, f.out))
}

func TestRun_OperationProblemsBecomeFailures(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		fake   *testutil.FakeModule
		detail string
	}{
		"error":    {fake: &testutil.FakeModule{FailFor: map[string]bool{"A": true}}, detail: testutil.ErrFake.Error()},
		"panic":    {fake: &testutil.FakeModule{PanicFor: map[string]bool{"A/normalize": true}}, detail: "panicked: fake panic for A"},
		"no write": {fake: &testutil.FakeModule{NoWriteFor: map[string]bool{"A": true}}, detail: "wrote no output"},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, tc.fake, nil)

			got := f.run("A", "normalize", nil)

			assert.Equal(t, model.StatusFailed, got.Status)
			assert.Contains(t, got.Detail, tc.detail)
			assert.Empty(t, testutil.ListFiles(t, f.out), "partial output must be removed")
		})
	}
}

func TestRun_TimeoutIsFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &testutil.FakeModule{Sleep: 5 * time.Second}, func(stages []*model.StageSpec) {
		stages[0].Timeout = 20 * time.Millisecond
	})

	start := time.Now()
	got := f.run("A", "normalize", nil)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Contains(t, got.Detail, "timed out after 20ms")
	assert.Empty(t, testutil.ListFiles(t, f.out))
}

func TestRun_CommandTemplate(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &testutil.FakeModule{}, func(stages []*model.StageSpec) {
		expr, diags := hclsyntax.ParseExpression([]byte(`["tool", inputs.gray_matter, output, subject]`), "test.hcl", hcl.InitialPos)
		require.False(t, diags.HasErrors())
		stages[0].Command = expr
	})

	got := f.run("A", "normalize", nil)

	require.True(t, got.Succeeded(), got.Detail)
	calls := f.fake.Calls()
	require.Len(t, calls, 1)
	argv := calls[0].Argv
	require.Len(t, argv, 4)
	assert.Equal(t, []string{"tool", filepath.Join(f.data, "mwp1A_T1w.nii")}, argv[:2])
	assert.Equal(t, f.out, filepath.Dir(argv[2]))
	assert.True(t, strings.HasPrefix(filepath.Base(argv[2]), ".partial-"))
	assert.True(t, strings.HasSuffix(argv[2], "-wmwp1A_T1w.nii"), "the partial keeps the output extension")
	assert.Equal(t, "A", argv[3])
}

func TestRun_ExclusiveOperationIsSerialized(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &testutil.FakeModule{Sleep: 20 * time.Millisecond, Exclusive: true}, nil)

	var wg sync.WaitGroup
	for _, id := range []model.SubjectID{"A", "C", "D"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, f.run(id, "normalize", nil).Succeeded())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.fake.MaxConcurrent())
}

func TestRun_ExclusiveStage(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &testutil.FakeModule{Sleep: 20 * time.Millisecond}, func(stages []*model.StageSpec) {
		stages[0].Exclusive = true
	})

	var wg sync.WaitGroup
	for _, id := range []model.SubjectID{"A", "C", "D"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.run(id, "normalize", nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.fake.MaxConcurrent())
}
