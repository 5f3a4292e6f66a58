package vbox

// Action is a control verb accepted on the command topic
type Action string

const (
	ActionStart      Action = "start"
	ActionStop       Action = "stop"
	ActionACPI       Action = "acpi"
	ActionReset      Action = "reset"
	ActionPause      Action = "pause"
	ActionResume     Action = "resume"
	ActionRDPEnable  Action = "rdp_enable"
	ActionRDPDisable Action = "rdp_disable"
)

// Actions lists every action in discovery order
var Actions = []Action{
	ActionStart,
	ActionStop,
	ActionACPI,
	ActionReset,
	ActionPause,
	ActionResume,
	ActionRDPEnable,
	ActionRDPDisable,
}

var actionArgs = map[Action]func(vm string) []string{
	ActionStart:      func(vm string) []string { return []string{"startvm", vm, "--type", "headless"} },
	ActionStop:       func(vm string) []string { return []string{"controlvm", vm, "poweroff"} },
	ActionACPI:       func(vm string) []string { return []string{"controlvm", vm, "acpipowerbutton"} },
	ActionReset:      func(vm string) []string { return []string{"controlvm", vm, "reset"} },
	ActionPause:      func(vm string) []string { return []string{"controlvm", vm, "pause"} },
	ActionResume:     func(vm string) []string { return []string{"controlvm", vm, "resume"} },
	ActionRDPEnable:  func(vm string) []string { return []string{"modifyvm", vm, "--vrde", "on"} },
	ActionRDPDisable: func(vm string) []string { return []string{"modifyvm", vm, "--vrde", "off"} },
}

// ParseAction reports whether s names a known action
func ParseAction(s string) (Action, bool) {
	a := Action(s)
	_, ok := actionArgs[a]
	return a, ok
}

// Args returns the VBoxManage argument list for running a on vm
func (a Action) Args(vm string) ([]string, bool) {
	build, ok := actionArgs[a]
	if !ok {
		return nil, false
	}
	return build(vm), true
}
