package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	vbhcl "github.com/nsafar1/vbmgrid/internal/hcl"
	"github.com/nsafar1/vbmgrid/internal/registry"
	"github.com/nsafar1/vbmgrid/internal/testutil"
	"github.com/stretchr/testify/require"
)

// cohortPipeline runs one fake stage over data/in<ID>.txt and aggregates
// 2x2 matrices from matrices/<ID>.csv.
const cohortPipeline = `
pipeline {
  subjects   = "subjects.txt"
  output_dir = "derivatives"
  workers    = 2
}

stage "prep" {
  operation     = "fake"
  output_prefix = "p"
  input "src" {
    dir    = "data"
    prefix = "in"
    suffix = ".txt"
  }
}

aggregate {
  dimension = 2
  artifact  = "derivatives/cohort.msgpack"
  matrix {
    dir    = "matrices"
    suffix = ".csv"
  }
  phenotype {
    path           = "phenotype.csv"
    subject_column = "subject_id"
    group_column   = "group"
    sex_column     = "sex"
    age_column     = "age"
    volume_column  = "tiv"
  }
  lut {
    path   = "lut.txt"
    labels = [1002, 1003]
  }
}
`

// cohortFiles lays out subjects A, B and C. B has no stage input and a
// malformed matrix, so only A and C reach the tensor.
func cohortFiles() map[string]string {
	return map[string]string{
		"subjects.txt":   "A\nB\nC\n",
		"data/inA.txt":   "a\n",
		"data/inC.txt":   "c\n",
		"matrices/A.csv": "r1,r2\n1,2\n3,4\n",
		"matrices/B.csv": "r1,r2\n1,2\n",
		"matrices/C.csv": "r1,r2\n3,-6\n1,0\n",
		"phenotype.csv":  "subject_id,group,sex,age,tiv\nC,patient,F,41,1400\nA,control,M,30,1500\n",
		"lut.txt":        "# label name r g b a\n1002 ctx-lh-caudalanteriorcingulate 80 20 140 0\n1003 ctx-lh-caudalmiddlefrontal 100 0 100 0\n",
	}
}

// setupAppTest writes files and a pipeline into a temp directory and creates
// an app over it.
func setupAppTest(t *testing.T, pipeline string, files map[string]string, cfg Config, modules ...registry.Module) (*App, *testutil.SafeBuffer, string) {
	t.Helper()
	root := t.TempDir()
	testutil.WriteFiles(t, root, files)
	cfg.PipelinePath = filepath.Join(root, "pipeline.hcl")
	require.NoError(t, os.WriteFile(cfg.PipelinePath, []byte(pipeline), 0o644))
	if cfg.Command == "" {
		cfg.Command = CommandRun
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	cfg.LogLevel = "debug"
	appConfig, err := NewConfig(cfg)
	require.NoError(t, err)

	logBuffer := &testutil.SafeBuffer{}
	a, err := NewApp(logBuffer, appConfig, vbhcl.NewLoader(), modules...)
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Close()
		if os.Getenv("VBMGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})
	return a, logBuffer, root
}

func newAppErr(t *testing.T, pipeline string, modules ...registry.Module) error {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.hcl")
	require.NoError(t, os.WriteFile(path, []byte(pipeline), 0o644))
	cfg, err := NewConfig(Config{PipelinePath: path, Command: CommandRun, LogFormat: "text", LogLevel: "error"})
	require.NoError(t, err)
	_, err = NewApp(&testutil.SafeBuffer{}, cfg, vbhcl.NewLoader(), modules...)
	return err
}

func withStageCommand(pipeline, command string) string {
	return strings.Replace(pipeline, `output_prefix = "p"`, `output_prefix = "p"`+"\n  command = "+command, 1)
}
