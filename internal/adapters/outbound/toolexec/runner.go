// Package toolexec runs external command-line tools (security, xcodebuild,
// altool, iTMSTransporter) and captures their output. Adapters depend on
// the Runner interface so tests can script tool behavior.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/sufield/signet/internal/logging"
	"github.com/sufield/signet/internal/ports"
)

// Command is one tool invocation.
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Env   []string
	Stdin io.Reader

	// Secrets are replaced by "***" wherever the command is logged or
	// reported in an error.
	Secrets []string
}

// String renders the command line with secrets masked.
func (c Command) String() string {
	return mask(strings.Join(append([]string{c.Name}, c.Args...), " "), c.Secrets)
}

// Result is the captured output of a finished command.
type Result struct {
	Stdout []byte
	Stderr []byte
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExitError is returned for a non-zero exit status.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Command, e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// OS runs commands as child processes.
type OS struct {
	Logger *slog.Logger
}

var _ Runner = OS{}

// Run executes cmd. A missing binary yields ports.ErrToolUnavailable.
func (o OS) Run(ctx context.Context, cmd Command) (Result, error) {
	logger := logging.OrDiscard(o.Logger)
	path, err := exec.LookPath(cmd.Name)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ports.ErrToolUnavailable, cmd.Name, err)
	}

	c := exec.CommandContext(ctx, path, cmd.Args...) // #nosec G204 - tool names are fixed by adapters
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(c.Environ(), cmd.Env...)
	}
	c.Stdin = cmd.Stdin
	var stdout, stderr bytes.Buffer
	c.Stdout, c.Stderr = &stdout, &stderr

	logger.Debug("running tool", "command", cmd.String(), "dir", cmd.Dir)
	err = c.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, &ExitError{
			Command: cmd.String(),
			Code:    exitErr.ExitCode(),
			Stderr:  mask(tail(stderr.String(), 2048), cmd.Secrets),
		}
	}
	return res, fmt.Errorf("%s: %w", cmd.String(), err)
}

func mask(s string, secrets []string) string {
	for _, secret := range secrets {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, "***")
		}
	}
	return s
}

// tail keeps at most the last n bytes of s, where tools print their actual
// error. The cut never splits a UTF-8 sequence.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return "..." + s[i:]
}
