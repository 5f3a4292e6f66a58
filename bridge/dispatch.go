package bridge

import (
	"context"
	"errors"
	"strings"

	"github.com/eddielth/vbox-mqtt/logger"
	"github.com/eddielth/vbox-mqtt/metrics"
	"github.com/eddielth/vbox-mqtt/vbox"
)

// ParseCommand splits "<action> <vm name>" at the first space. The VM name
// keeps any further spaces.
func ParseCommand(payload []byte) (action, vm string, ok bool) {
	parts := strings.SplitN(string(payload), " ", 2)
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// HandleCommand runs one command-topic payload. Malformed payloads are
// dropped; everything else ends with a status refresh, whether the action
// was unknown, failed or succeeded. Nothing is reported back to the sender.
func (b *Bridge) HandleCommand(ctx context.Context, payload []byte) {
	logger.Info("received command: %s", payload)

	name, vm, ok := ParseCommand(payload)
	if !ok {
		logger.Error("invalid command format: %q", payload)
		metrics.Command("", metrics.ResultIgnored)
		return
	}

	if action, known := vbox.ParseAction(name); known {
		result := metrics.ResultOK
		if err := b.hv.Control(ctx, action, vm); err != nil {
			logger.Error("command %s failed: %v", payload, err)
			result = metrics.ResultFailed
			if errors.Is(err, vbox.ErrTimeout) {
				result = metrics.ResultTimeout
			}
		}
		metrics.Command(name, result)
	} else {
		logger.Debug("ignoring unknown action %q", name)
		metrics.Command("unknown", metrics.ResultIgnored)
	}

	b.UpdateStatus(ctx)
}
