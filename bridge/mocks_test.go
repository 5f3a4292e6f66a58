package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/eddielth/vbox-mqtt/config"
	"github.com/eddielth/vbox-mqtt/mqtt"
	"github.com/eddielth/vbox-mqtt/vbox"
)

type publication struct {
	topic    string
	retained bool
	payload  string
}

// fakeBroker records publishes and subscriptions; the channels are driven by tests
type fakeBroker struct {
	mu            sync.Mutex
	publishes     []publication
	subscriptions []string
	connectErr    error
	publishErr    error
	connectCalls  int
	disconnected  bool

	connected chan struct{}
	messages  chan mqtt.Message
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		connected: make(chan struct{}, 1),
		messages:  make(chan mqtt.Message, 8),
	}
}

func (f *fakeBroker) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	return f.connectErr
}

func (f *fakeBroker) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
}

func (f *fakeBroker) Publish(topic string, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishes = append(f.publishes, publication{topic, retained, string(payload)})
	return f.publishErr
}

func (f *fakeBroker) Subscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions = append(f.subscriptions, topic)
	return nil
}

func (f *fakeBroker) Connected() <-chan struct{}    { return f.connected }
func (f *fakeBroker) Messages() <-chan mqtt.Message { return f.messages }

func (f *fakeBroker) published() []publication {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publication(nil), f.publishes...)
}

func (f *fakeBroker) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishes = nil
}

// lastPayload returns the most recent payload published to topic
func (f *fakeBroker) lastPayload(topic string) (string, bool) {
	pubs := f.published()
	for i := len(pubs) - 1; i >= 0; i-- {
		if pubs[i].topic == topic {
			return pubs[i].payload, true
		}
	}
	return "", false
}

type controlCall struct {
	action vbox.Action
	vm     string
}

// fakeHypervisor serves raw states from a map and records control calls
type fakeHypervisor struct {
	mu         sync.Mutex
	vms        []string
	states     map[string]string
	listErr    error
	runningErr error
	stateErr   map[string]error
	controlErr error
	controls   []controlCall
}

func (f *fakeHypervisor) ListVMs(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.vms...), nil
}

func (f *fakeHypervisor) ListRunningVMs(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.runningErr != nil {
		return nil, f.runningErr
	}
	var running []string
	for _, vm := range f.vms {
		if f.states[vm] == "running" {
			running = append(running, vm)
		}
	}
	return running, nil
}

func (f *fakeHypervisor) setVMs(vms ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vms = vms
}

func (f *fakeHypervisor) VMState(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.stateErr[name]; err != nil {
		return "", err
	}
	if s, ok := f.states[name]; ok {
		return s, nil
	}
	return vbox.RawUnknown, nil
}

func (f *fakeHypervisor) Control(_ context.Context, action vbox.Action, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, controlCall{action, name})
	if f.controlErr != nil {
		return f.controlErr
	}
	// mimic the effect of the call so the refresh sees it
	switch action {
	case vbox.ActionStart, vbox.ActionResume:
		f.states[name] = "running"
	case vbox.ActionStop:
		f.states[name] = "poweroff"
	case vbox.ActionPause:
		f.states[name] = "paused"
	}
	return nil
}

func (f *fakeHypervisor) controlCalls() []controlCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]controlCall(nil), f.controls...)
}

type prefixFilter struct{ exclude string }

func (p prefixFilter) Apply(vms []string) []string {
	var out []string
	for _, vm := range vms {
		if len(vm) < len(p.exclude) || vm[:len(p.exclude)] != p.exclude {
			out = append(out, vm)
		}
	}
	return out
}

// switchableFilter excludes a set of VMs that tests can change while Run is going
type switchableFilter struct {
	mu      sync.Mutex
	exclude map[string]bool
}

func (f *switchableFilter) set(vms ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exclude = map[string]bool{}
	for _, vm := range vms {
		f.exclude[vm] = true
	}
}

func (f *switchableFilter) Apply(vms []string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, vm := range vms {
		if !f.exclude[vm] {
			out = append(out, vm)
		}
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		Discovery: config.DiscoveryConfig{Prefix: "homeassistant", Namespace: "virtualbox"},
		Poll:      config.PollConfig{Interval: 20 * time.Millisecond},
	}
}
