// Package external wraps the collaborators that live outside the process: ffprobe and
// ffmpeg, the Java steganalysis tools, the YARA CLI and URL reputation services.
// Every subprocess goes through a CommandRunner with a mandatory timeout.
package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"MediaSteGo/pkg/models"
)

// DefaultTimeout applies when a runner is built without one
const DefaultTimeout = 2 * time.Minute

// Output is what a finished command wrote
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Combined returns stdout followed by stderr
func (o Output) Combined() string {
	return string(o.Stdout) + string(o.Stderr)
}

// CommandRunner runs one external command to completion
type CommandRunner interface {
	// Run returns the command output. A non-zero exit status still returns the output
	// together with an *ExitError; a missing binary or timeout returns only an error.
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// ExitError reports a command that ran but exited non-zero
type ExitError struct {
	Name     string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Name, e.ExitCode, msg)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct {
	Timeout time.Duration
}

// NewExecRunner builds a runner; a non-positive timeout falls back to DefaultTimeout
func NewExecRunner(timeout time.Duration) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ExecRunner{Timeout: timeout}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	if ctx.Err() != nil {
		return out, fmt.Errorf("%w: %s: %v", models.ErrCollaboratorUnavailable, name, ctx.Err())
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return out, nil
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
		return out, &ExitError{Name: name, ExitCode: out.ExitCode, Stderr: stderr.String()}
	default:
		return out, fmt.Errorf("%w: %s: %v", models.ErrCollaboratorUnavailable, name, err)
	}
}
