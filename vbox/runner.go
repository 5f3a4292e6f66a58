package vbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/eddielth/vbox-mqtt/config"
	"github.com/eddielth/vbox-mqtt/logger"
	"github.com/eddielth/vbox-mqtt/metrics"
)

var (
	// ErrTimeout is returned when VBoxManage does not finish within the configured timeout
	ErrTimeout = errors.New("vboxmanage timed out")
	// ErrCommandFailed is returned on a non-zero exit or when the process cannot be started
	ErrCommandFailed = errors.New("vboxmanage failed")
)

// Runner executes one VBoxManage invocation and returns its trimmed stdout
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// ExecRunner runs VBoxManage as a subprocess, optionally under another
// account via a sudo-style prefix: <sudo> -u <user> <binary> args...
type ExecRunner struct {
	binary  string
	sudo    string
	user    string
	timeout time.Duration
}

// NewExecRunner creates a runner from configuration
func NewExecRunner(cfg config.VBoxConfig) *ExecRunner {
	return &ExecRunner{
		binary:  cfg.Binary,
		sudo:    cfg.Sudo,
		user:    cfg.User,
		timeout: cfg.Timeout,
	}
}

// commandLine returns the program and argv for one call
func (r *ExecRunner) commandLine(args []string) (string, []string) {
	if r.sudo == "" {
		return r.binary, args
	}
	argv := make([]string, 0, len(args)+3)
	if r.user != "" {
		argv = append(argv, "-u", r.user)
	}
	argv = append(argv, r.binary)
	argv = append(argv, args...)
	return r.sudo, argv
}

// Run implements Runner. The process is killed when the timeout expires
// and Run does not return before its pipes are released.
func (r *ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	name, argv := r.commandLine(args)
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, argv...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	logger.Debug("exec: %s %s", name, strings.Join(argv, " "))
	err := cmd.Run()

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		metrics.CLICall(metrics.ResultTimeout)
		return "", fmt.Errorf("%w: %s after %s", ErrTimeout, strings.Join(args, " "), r.timeout)
	case err != nil:
		metrics.CLICall(metrics.ResultFailed)
		return "", fmt.Errorf("%w: %s: %v (stderr: %s)", ErrCommandFailed,
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}

	metrics.CLICall(metrics.ResultOK)
	return strings.TrimSpace(stdout.String()), nil
}
