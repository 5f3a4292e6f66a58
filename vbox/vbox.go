// Package vbox drives the VirtualBox management CLI: listing machines,
// reading their power state and issuing control commands.
package vbox

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// Manager issues VBoxManage queries and commands through a Runner
type Manager struct {
	runner Runner
}

// NewManager creates a manager on top of runner
func NewManager(runner Runner) *Manager {
	return &Manager{runner: runner}
}

// ListVMs returns the names of all registered machines
func (m *Manager) ListVMs(ctx context.Context) ([]string, error) {
	out, err := m.runner.Run(ctx, "list", "vms")
	if err != nil {
		return nil, err
	}
	return parseVMList(out), nil
}

// ListRunningVMs returns the names of machines that are currently running
func (m *Manager) ListRunningVMs(ctx context.Context) ([]string, error) {
	out, err := m.runner.Run(ctx, "list", "runningvms")
	if err != nil {
		return nil, err
	}
	return parseVMList(out), nil
}

// VMState returns the raw VMState value of a machine, or RawUnknown when
// the output carries none.
func (m *Manager) VMState(ctx context.Context, name string) (string, error) {
	out, err := m.runner.Run(ctx, "showvminfo", name, "--machinereadable")
	if err != nil {
		return "", err
	}
	return parseVMState(out), nil
}

// Control runs action against the named machine
func (m *Manager) Control(ctx context.Context, action Action, name string) error {
	args, ok := action.Args(name)
	if !ok {
		return fmt.Errorf("unsupported action %q", action)
	}
	if _, err := m.runner.Run(ctx, args...); err != nil {
		return fmt.Errorf("%s %s: %w", action, name, err)
	}
	return nil
}

// parseVMList extracts the quoted names from lines like `"demo" {uuid}`
func parseVMList(out string) []string {
	var names []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), `"`)
		if len(parts) < 2 {
			continue
		}
		names = append(names, parts[1])
	}
	return names
}

func parseVMState(out string) string {
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VMState=") {
			continue
		}
		value := strings.TrimSpace(strings.TrimPrefix(line, "VMState="))
		return strings.Trim(value, `"`)
	}
	return RawUnknown
}
