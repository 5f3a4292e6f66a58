// Package bridge connects VirtualBox to the MQTT bus: it announces every VM
// through Home Assistant discovery, keeps per-VM status topics current and
// turns command-topic messages into VBoxManage calls.
//
// All hypervisor calls and publishes happen on the goroutine running Run.
// Broker callbacks only queue connect events and messages for it, so a
// command is always handled between two status refreshes, never during one.
package bridge

import (
	"context"
	"time"

	"github.com/eddielth/vbox-mqtt/config"
	"github.com/eddielth/vbox-mqtt/logger"
	"github.com/eddielth/vbox-mqtt/mqtt"
	"github.com/eddielth/vbox-mqtt/vbox"
)

// Broker is the subset of the MQTT client the bridge drives
type Broker interface {
	Connect() error
	Disconnect()
	Publish(topic string, retained bool, payload []byte) error
	Subscribe(topic string) error
	Connected() <-chan struct{}
	Messages() <-chan mqtt.Message
}

// Hypervisor is the subset of vbox.Manager the bridge drives
type Hypervisor interface {
	ListVMs(ctx context.Context) ([]string, error)
	ListRunningVMs(ctx context.Context) ([]string, error)
	VMState(ctx context.Context, name string) (string, error)
	Control(ctx context.Context, action vbox.Action, name string) error
}

// VMFilter narrows the VM list before anything is published
type VMFilter interface {
	Apply(vms []string) []string
}

// Bridge owns the application lifecycle: Start, Run, Stop
type Bridge struct {
	topics   config.DiscoveryConfig
	interval time.Duration
	broker   Broker
	hv       Hypervisor
	filter   VMFilter

	resync chan struct{}
	// VMs whose discovery configs are retained on the broker
	announced map[string]bool
	// VMs with a vm_state series
	reported map[string]bool
}

// New creates a bridge; filter may be nil
func New(cfg *config.Config, broker Broker, hv Hypervisor, filter VMFilter) *Bridge {
	return &Bridge{
		topics:    cfg.Discovery,
		interval:  cfg.Poll.Interval,
		broker:    broker,
		hv:        hv,
		filter:    filter,
		resync:    make(chan struct{}, 1),
		announced: map[string]bool{},
		reported:  map[string]bool{},
	}
}

// Rediscover asks Run to reconcile discovery with the current VM list, e.g.
// after the filter script changed. Safe to call from any goroutine.
func (b *Bridge) Rediscover() {
	select {
	case b.resync <- struct{}{}:
	default:
	}
}

// Start connects to the broker. A failure is logged only; the client keeps
// retrying on its own and Run keeps polling meanwhile.
func (b *Bridge) Start() {
	if err := b.broker.Connect(); err != nil {
		logger.Error("failed to connect to MQTT broker: %v", err)
	}
}

// Run refreshes status every poll interval and handles connect events and
// commands until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.UpdateStatus(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.broker.Connected():
			b.HandleConnect(ctx)
		case <-b.resync:
			b.Resync(ctx)
		case msg := <-b.broker.Messages():
			if msg.Topic != b.topics.CommandTopic() {
				logger.Warn("ignoring message on unexpected topic %s", msg.Topic)
				continue
			}
			b.HandleCommand(ctx, msg.Payload)
		case <-ticker.C:
			b.UpdateStatus(ctx)
		}
	}
}

// Stop marks the bridge offline and disconnects
func (b *Bridge) Stop() {
	b.publish(b.topics.AvailabilityTopic(), true, []byte(mqtt.Offline))
	b.broker.Disconnect()
}

// HandleConnect subscribes to the command topic, announces every VM and
// publishes fresh status. It runs on every (re)connection.
func (b *Bridge) HandleConnect(ctx context.Context) {
	topic := b.topics.CommandTopic()
	if err := b.broker.Subscribe(topic); err != nil {
		logger.Error("failed to subscribe to %s: %v", topic, err)
	}

	b.announce(ctx, true)
	b.publish(b.topics.AvailabilityTopic(), true, []byte(mqtt.Online))
	b.UpdateStatus(ctx)
}

// Resync announces VMs that appeared since the last announcement and
// withdraws the ones that vanished or are now filtered out.
func (b *Bridge) Resync(ctx context.Context) {
	b.announce(ctx, false)
	b.UpdateStatus(ctx)
}

// announce publishes discovery for the current VMs (only new ones unless all
// is set) and clears every previously announced VM that is no longer listed.
func (b *Bridge) announce(ctx context.Context, all bool) {
	vms, ok := b.listVMs(ctx)
	if !ok {
		return
	}

	running := b.runningSet(ctx)
	current := make(map[string]bool, len(vms))
	for _, vm := range vms {
		current[vm] = true
		if all || !b.announced[vm] {
			if running == nil {
				b.PublishDiscovery(ctx, vm)
			} else {
				b.publishDiscovery(vm, running[vm])
			}
		}
	}

	for vm := range b.announced {
		if !current[vm] {
			b.Withdraw(vm)
		}
	}
	b.announced = current
}

// runningSet returns the running VMs, or nil when they cannot be listed
func (b *Bridge) runningSet(ctx context.Context) map[string]bool {
	vms, err := b.hv.ListRunningVMs(ctx)
	if err != nil {
		logger.Warn("failed to list running VMs, reading states one by one: %v", err)
		return nil
	}
	running := make(map[string]bool, len(vms))
	for _, vm := range vms {
		running[vm] = true
	}
	return running
}

// listVMs returns the filtered VM list; ok is false when VBoxManage fails
func (b *Bridge) listVMs(ctx context.Context) ([]string, bool) {
	vms, err := b.hv.ListVMs(ctx)
	if err != nil {
		logger.Error("failed to list VMs: %v", err)
		return nil, false
	}
	if b.filter != nil {
		vms = b.filter.Apply(vms)
	}
	return vms, true
}

func (b *Bridge) publish(topic string, retained bool, payload []byte) {
	if err := b.broker.Publish(topic, retained, payload); err != nil {
		if mqtt.IsNotConnected(err) {
			logger.Debug("skipped publish to %s: %v", topic, err)
			return
		}
		logger.Error("failed to publish to %s: %v", topic, err)
	}
}
