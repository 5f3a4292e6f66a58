package bridge

import (
	"context"

	"github.com/eddielth/vbox-mqtt/logger"
	"github.com/eddielth/vbox-mqtt/metrics"
	"github.com/eddielth/vbox-mqtt/vbox"
)

var stateNames = func() []string {
	names := make([]string, len(vbox.States))
	for i, s := range vbox.States {
		names[i] = string(s)
	}
	return names
}()

// UpdateStatus publishes the normalized state of every VM, retained.
// A VM whose state cannot be read is reported as unknown.
func (b *Bridge) UpdateStatus(ctx context.Context) {
	vms, ok := b.listVMs(ctx)
	if !ok {
		return
	}

	seen := make(map[string]bool, len(vms))
	for _, vm := range vms {
		seen[vm] = true
		raw, err := b.hv.VMState(ctx, vm)
		if err != nil {
			logger.Error("failed to read state of %s: %v", vm, err)
			raw = vbox.RawUnknown
		}

		state := vbox.MapState(raw)
		b.publish(b.topics.StatusTopic(vm), true, []byte(state))
		metrics.SetVMState(vm, string(state), stateNames)
		logger.Debug("updated status for %s: %s", vm, state)
	}

	for vm := range b.reported {
		if !seen[vm] {
			metrics.ForgetVM(vm)
		}
	}
	b.reported = seen
}
