package vbox

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner answers by joined argument string and records every call
type fakeRunner struct {
	outputs map[string]string
	errs    map[string]error
	calls   [][]string
}

func (f *fakeRunner) Run(_ context.Context, args ...string) (string, error) {
	f.calls = append(f.calls, args)
	key := strings.Join(args, " ")
	if err, ok := f.errs[key]; ok {
		return "", err
	}
	return f.outputs[key], nil
}

func TestManager_ListVMs(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"list vms": `"demo" {0f6b7c5e-1111-2222-3333-444455556666}
"Windows 11" {aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee}

garbage line without quotes`,
		"list runningvms": `"demo" {0f6b7c5e-1111-2222-3333-444455556666}`,
	}}
	m := NewManager(runner)

	vms, err := m.ListVMs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"demo", "Windows 11"}, vms)

	running, err := m.ListRunningVMs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"demo"}, running)
}

func TestManager_ListVMs_Empty(t *testing.T) {
	m := NewManager(&fakeRunner{})
	vms, err := m.ListVMs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, vms)
}

func TestManager_ListVMs_Error(t *testing.T) {
	runner := &fakeRunner{errs: map[string]error{"list vms": ErrCommandFailed}}
	_, err := NewManager(runner).ListVMs(context.Background())
	assert.ErrorIs(t, err, ErrCommandFailed)
}

func TestManager_VMState(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{"quoted", "name=\"demo\"\nVMState=\"poweroff\"\nVMStateChangeTime=\"2024-01-01T00:00:00.000000000\"", "poweroff"},
		{"unquoted", "VMState=running", "running"},
		{"missing", "name=\"demo\"", RawUnknown},
		{"prefix only matches at line start", "XVMState=\"paused\"", RawUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{outputs: map[string]string{"showvminfo demo --machinereadable": tt.output}}
			got, err := NewManager(runner).VMState(context.Background(), "demo")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestManager_Control(t *testing.T) {
	tests := []struct {
		action Action
		want   []string
	}{
		{ActionStart, []string{"startvm", "demo", "--type", "headless"}},
		{ActionStop, []string{"controlvm", "demo", "poweroff"}},
		{ActionACPI, []string{"controlvm", "demo", "acpipowerbutton"}},
		{ActionReset, []string{"controlvm", "demo", "reset"}},
		{ActionPause, []string{"controlvm", "demo", "pause"}},
		{ActionResume, []string{"controlvm", "demo", "resume"}},
		{ActionRDPEnable, []string{"modifyvm", "demo", "--vrde", "on"}},
		{ActionRDPDisable, []string{"modifyvm", "demo", "--vrde", "off"}},
	}
	require.Len(t, tests, len(Actions))

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			runner := &fakeRunner{}
			require.NoError(t, NewManager(runner).Control(context.Background(), tt.action, "demo"))
			require.Len(t, runner.calls, 1)
			assert.Equal(t, tt.want, runner.calls[0])
		})
	}
}

func TestManager_Control_Errors(t *testing.T) {
	runner := &fakeRunner{errs: map[string]error{"controlvm demo reset": ErrTimeout}}
	m := NewManager(runner)

	err := m.Control(context.Background(), ActionReset, "demo")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "reset demo")

	err = m.Control(context.Background(), Action("reboot"), "demo")
	assert.Error(t, err)
	assert.Len(t, runner.calls, 1)
}

func TestMapState(t *testing.T) {
	tests := map[string]State{
		"poweroff": StateStopped,
		"running":  StateRunning,
		"paused":   StatePaused,
		"error":    StateError,
		"unknown":  StateUnknown,
		"xyz":      StateUnknown,
		"saved":    StateUnknown,
		"":         StateUnknown,
	}
	for raw, want := range tests {
		assert.Equal(t, want, MapState(raw), "raw %q", raw)
	}

	for _, s := range States {
		assert.Contains(t, []State{StateRunning, StateStopped, StatePaused, StateError, StateUnknown}, s)
	}
}

func TestParseAction(t *testing.T) {
	for _, a := range Actions {
		got, ok := ParseAction(string(a))
		assert.True(t, ok)
		assert.Equal(t, a, got)
	}

	_, ok := ParseAction("shutdown")
	assert.False(t, ok)
	_, ok = ParseAction("START")
	assert.False(t, ok)
}

func TestErrorsAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(ErrTimeout, ErrCommandFailed))
}
