package bridge

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/eddielth/vbox-mqtt/logger"
	"github.com/eddielth/vbox-mqtt/vbox"
)

const (
	iconRunning = "mdi:server-network"
	iconStopped = "mdi:server-network-off"
)

var actionIcons = map[vbox.Action]string{
	vbox.ActionStart:      "mdi:play",
	vbox.ActionStop:       "mdi:stop",
	vbox.ActionACPI:       "mdi:stop",
	vbox.ActionReset:      "mdi:restart",
	vbox.ActionPause:      "mdi:pause",
	vbox.ActionResume:     "mdi:play",
	vbox.ActionRDPEnable:  "mdi:monitor",
	vbox.ActionRDPDisable: "mdi:monitor-off",
}

// Device groups every entity of one VM in Home Assistant
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

// SensorConfig is the discovery payload of the status sensor
type SensorConfig struct {
	Name              string   `json:"name"`
	StateTopic        string   `json:"state_topic"`
	UniqueID          string   `json:"unique_id"`
	DeviceClass       string   `json:"device_class"`
	Options           []string `json:"options"`
	Device            Device   `json:"device"`
	Icon              string   `json:"icon"`
	AvailabilityTopic string   `json:"availability_topic,omitempty"`
}

// ButtonConfig is the discovery payload of one command button
type ButtonConfig struct {
	Name              string `json:"name"`
	CommandTopic      string `json:"command_topic"`
	PayloadPress      string `json:"payload_press"`
	UniqueID          string `json:"unique_id"`
	Device            Device `json:"device"`
	Icon              string `json:"icon"`
	AvailabilityTopic string `json:"availability_topic,omitempty"`
}

func (b *Bridge) device(vm string) Device {
	return Device{
		Identifiers:  []string{b.uniqueID(vm)},
		Name:         vm,
		Model:        "VirtualBox VM",
		Manufacturer: "VirtualBox",
	}
}

func (b *Bridge) uniqueID(vm string, parts ...string) string {
	return strings.Join(append([]string{b.topics.Namespace, vm}, parts...), "_")
}

// PublishDiscovery announces one status sensor and one button per action
// for vm, all retained.
func (b *Bridge) PublishDiscovery(ctx context.Context, vm string) {
	raw, err := b.hv.VMState(ctx, vm)
	if err != nil {
		logger.Error("failed to read state of %s: %v", vm, err)
	}
	b.publishDiscovery(vm, err == nil && raw == "running")
}

func (b *Bridge) publishDiscovery(vm string, running bool) {
	device := b.device(vm)

	icon := iconStopped
	if running {
		icon = iconRunning
	}

	b.publishJSON(b.topics.ConfigTopic("sensor", vm, "status"), SensorConfig{
		Name:              vm + " Status",
		StateTopic:        b.topics.StatusTopic(vm),
		UniqueID:          b.uniqueID(vm, "status"),
		DeviceClass:       "enum",
		Options:           stateNames,
		Device:            device,
		Icon:              icon,
		AvailabilityTopic: b.topics.AvailabilityTopic(),
	})

	for _, action := range vbox.Actions {
		b.publishJSON(b.topics.ConfigTopic("button", vm, string(action)), ButtonConfig{
			Name:              vm + " " + capitalize(string(action)),
			CommandTopic:      b.topics.CommandTopic(),
			PayloadPress:      string(action) + " " + vm,
			UniqueID:          b.uniqueID(vm, string(action)),
			Device:            device,
			Icon:              actionIcons[action],
			AvailabilityTopic: b.topics.AvailabilityTopic(),
		})
	}

	logger.Info("published discovery for %s", vm)
}

// Withdraw removes the retained discovery configs and status of vm so Home
// Assistant drops its entities.
func (b *Bridge) Withdraw(vm string) {
	b.publish(b.topics.ConfigTopic("sensor", vm, "status"), true, nil)
	for _, action := range vbox.Actions {
		b.publish(b.topics.ConfigTopic("button", vm, string(action)), true, nil)
	}
	b.publish(b.topics.StatusTopic(vm), true, nil)
	logger.Info("withdrew discovery for %s", vm)
}

func (b *Bridge) publishJSON(topic string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		logger.Error("failed to encode discovery payload for %s: %v", topic, err)
		return
	}
	b.publish(topic, true, payload)
}

// capitalize upper-cases the first letter and lower-cases the rest
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
