package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"clusterizer/internal/domain/model"

	"golang.org/x/text/encoding/unicode"
)

// DefaultGracePeriod is how long a cancelled program gets between the
// interrupt and the kill.
const DefaultGracePeriod = 5 * time.Second

// Executor runs a task's program in a fresh scratch directory.
type Executor struct {
	cacheDir string
	grace    time.Duration
}

func NewExecutor(cacheDir string, grace time.Duration) *Executor {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Executor{cacheDir: cacheDir, grace: grace}
}

// ProgramPath is the canonical path of the entry point of a cached version.
func (e *Executor) ProgramPath(id model.ProjectVersionID) (string, error) {
	name := "main"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	path, err := filepath.Abs(filepath.Join(VersionDir(e.cacheDir, id), name))
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(path)
}

// Execute runs the program of version with stdin piped in. A non-zero exit is
// a normal outcome; ExitCode is nil when the program was killed by a signal.
func (e *Executor) Execute(ctx context.Context, version model.ProjectVersionID, stdin string) (model.SubmitResultRequest, error) {
	var result model.SubmitResultRequest

	program, err := e.ProgramPath(version)
	if err != nil {
		return result, fmt.Errorf("locate program of version %d: %w", version, err)
	}

	slot, err := os.MkdirTemp("", "clusterizer-slot-*")
	if err != nil {
		return result, fmt.Errorf("create slot: %w", err)
	}
	defer os.RemoveAll(slot)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, program)
	cmd.Dir = slot
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Cancel = func() error { return interrupt(cmd.Process) }
	cmd.WaitDelay = e.grace

	err = cmd.Run()
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return result, fmt.Errorf("run %s: %w", program, err)
	}

	result.Stdout = lossyUTF8(stdout.Bytes())
	result.Stderr = lossyUTF8(stderr.Bytes())
	if state := cmd.ProcessState; state != nil && state.Exited() {
		code := int32(state.ExitCode())
		result.ExitCode = &code
	}
	return result, nil
}

func interrupt(p *os.Process) error {
	if runtime.GOOS == "windows" {
		return p.Kill()
	}
	return p.Signal(os.Interrupt)
}

// lossyUTF8 replaces invalid UTF-8 sequences with U+FFFD.
func lossyUTF8(b []byte) string {
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return string(bytes.ToValidUTF8(b, []byte("�")))
	}
	return string(out)
}
