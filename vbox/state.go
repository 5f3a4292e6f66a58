package vbox

// State is the normalized power state published on the bus
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
	StatePaused  State = "paused"
	StateError   State = "error"
	StateUnknown State = "unknown"
)

// RawUnknown is returned by VMState when showvminfo has no VMState line
const RawUnknown = "unknown"

// States lists every State in the order Home Assistant shows them as enum options
var States = []State{StateRunning, StatePaused, StateStopped, StateError, StateUnknown}

var stateMapping = map[string]State{
	"poweroff": StateStopped,
	"running":  StateRunning,
	"paused":   StatePaused,
	"error":    StateError,
	"unknown":  StateUnknown,
}

// MapState converts a VBoxManage VMState value; anything unmapped is unknown
func MapState(raw string) State {
	if s, ok := stateMapping[raw]; ok {
		return s
	}
	return StateUnknown
}
