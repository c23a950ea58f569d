// Package toolexec invokes the external imaging tools that implement the
// actual transforms. Each invocation is a separate process, so a crash in the
// tool can only ever fail the subject it was working on.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nsafar1/vbmgrid/internal/ctxlog"
)

// tailLines is how much of the tool's stderr is kept in a failure detail.
const tailLines = 5

// NotInstalledError reports a tool binary that cannot be found. It is a fatal
// startup condition.
type NotInstalledError struct {
	Name string
	Err  error
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("external tool %q is not installed or not on PATH: %v", e.Name, e.Err)
}

func (e *NotInstalledError) Unwrap() error { return e.Err }

// ExitError reports a tool that ran but exited unsuccessfully.
type ExitError struct {
	Argv   []string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Argv[0], e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Runner starts external tool processes.
type Runner interface {
	Run(ctx context.Context, argv []string, env map[string]string) error
}

// Exec is the os/exec backed Runner.
type Exec struct{}

// New returns the default process runner.
func New() *Exec {
	return &Exec{}
}

// CheckInstalled verifies that the named binary can be located. A PATH entry
// in env takes precedence over the process PATH, mirroring what the child
// process will see.
func CheckInstalled(name string, env map[string]string) error {
	_, err := lookup(name, env)
	return err
}

func lookup(name string, env map[string]string) (string, error) {
	if strings.ContainsRune(name, os.PathSeparator) {
		if err := checkExecutable(name); err != nil {
			return "", &NotInstalledError{Name: name, Err: err}
		}
		return name, nil
	}
	if searchPath, ok := env["PATH"]; ok {
		for _, dir := range filepath.SplitList(searchPath) {
			candidate := filepath.Join(dir, name)
			if checkExecutable(candidate) == nil {
				return candidate, nil
			}
		}
		return "", &NotInstalledError{Name: name, Err: exec.ErrNotFound}
	}
	bin, err := exec.LookPath(name)
	if err != nil {
		return "", &NotInstalledError{Name: name, Err: err}
	}
	return bin, nil
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() || info.Mode()&0o111 == 0 {
		return errors.New("not an executable file")
	}
	return nil
}

// Run executes argv with the parent environment extended by env and waits
// for it to finish. Cancelling ctx kills the process.
func (e *Exec) Run(ctx context.Context, argv []string, env map[string]string) error {
	if len(argv) == 0 {
		return errors.New("empty command")
	}
	logger := ctxlog.FromContext(ctx)

	bin, err := lookup(argv[0], env)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, bin, argv[1:]...)
	cmd.Env = mergeEnv(os.Environ(), env)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("Starting external tool.", "argv", argv)
	err = cmd.Run()
	if stdout.Len() > 0 {
		logger.Debug("External tool output.", "stdout", tail(stdout.String(), tailLines))
	}
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s interrupted: %w", argv[0], ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Argv: argv, Code: exitErr.ExitCode(), Stderr: tail(stderr.String(), tailLines)}
	}
	return fmt.Errorf("failed to start %s: %w", argv[0], err)
}

// mergeEnv overlays extra on base. Keys in extra win; output order is
// deterministic.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, overridden := extra[key]; overridden {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
