// Package filter decides which VMs are exposed on the bus using an
// optional JavaScript include(name) function.
package filter

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/eddielth/vbox-mqtt/config"
	"github.com/eddielth/vbox-mqtt/logger"
)

// Filter evaluates the configured script. The zero value and a nil *Filter
// include every VM.
type Filter struct {
	mu     sync.Mutex
	script *script
}

type script struct {
	vm      *goja.Runtime
	include goja.Callable
	source  string
}

// New builds a filter from configuration; no script means include everything
func New(cfg config.FilterConfig) (*Filter, error) {
	f := &Filter{}
	if err := f.Reload(cfg); err != nil {
		return nil, err
	}
	return f, nil
}

// Reload swaps in the script from cfg. On error the previous script stays active.
func (f *Filter) Reload(cfg config.FilterConfig) error {
	if !cfg.Enabled() {
		f.mu.Lock()
		f.script = nil
		f.mu.Unlock()
		return nil
	}

	code := cfg.ScriptCode
	source := "inline"
	if code == "" {
		data, err := os.ReadFile(cfg.ScriptPath)
		if err != nil {
			return fmt.Errorf("failed to load filter script %s: %w", cfg.ScriptPath, err)
		}
		code = string(data)
		source = cfg.ScriptPath
	}

	s, err := compile(code, source)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.script = s
	f.mu.Unlock()

	logger.Info("loaded VM filter script (%s)", source)
	return nil
}

func compile(code, source string) (*script, error) {
	vm := goja.New()

	_ = vm.Set("log", func(msg string) {
		logger.Info("[JS] %s", msg)
	})
	_ = vm.Set("hasPrefix", strings.HasPrefix)
	_ = vm.Set("hasSuffix", strings.HasSuffix)

	if _, err := vm.RunString(code); err != nil {
		return nil, fmt.Errorf("failed to run filter script %s: %w", source, err)
	}

	include, ok := goja.AssertFunction(vm.Get("include"))
	if !ok {
		return nil, fmt.Errorf("filter script %s does not define an 'include' function", source)
	}

	return &script{vm: vm, include: include, source: source}, nil
}

// Include reports whether vm should be exposed. Script failures and
// non-boolean results include the VM.
func (f *Filter) Include(vm string) bool {
	if f == nil {
		return true
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.script == nil {
		return true
	}

	result, err := f.script.include(goja.Undefined(), f.script.vm.ToValue(vm))
	if err != nil {
		logger.Warn("filter script failed for %s: %v", vm, err)
		return true
	}

	include, ok := result.Export().(bool)
	if !ok {
		logger.Warn("filter script returned %v for %s, expected a boolean", result, vm)
		return true
	}
	return include
}

// Apply returns the subset of vms that Include accepts
func (f *Filter) Apply(vms []string) []string {
	out := make([]string, 0, len(vms))
	for _, vm := range vms {
		if f.Include(vm) {
			out = append(out, vm)
		}
	}
	return out
}
