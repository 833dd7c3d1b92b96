// Package hal runs the hardware abstraction service. Devices are declared on
// config/hal and exposed as capabilities under
// hal/cap/<domain>/<kind>/<name>/{info,status,value,event,control/<verb>}.
package hal

import (
	"context"

	"envmon-go/bus"
	"envmon-go/services/hal/internal/core"
	"envmon-go/services/hal/internal/platform"
	"envmon-go/types"
	"envmon-go/x/timex"

	// Device builders register themselves.
	_ "envmon-go/services/hal/devices/dht"
	_ "envmon-go/services/hal/devices/gpio_dout"
	_ "envmon-go/services/hal/devices/rp2_temp"
)

// Registry arbitrates the pins devices claim.
type Registry = core.ResourceRegistry

// Control verbs handled by every capability.
const (
	VerbRead      = core.VerbRead
	VerbPollStart = core.VerbPollStart
	VerbPollStop  = core.VerbPollStop
)

// LED control verbs.
const (
	VerbSet    = "set"
	VerbToggle = "toggle"
)

// Run starts the HAL on the platform's default pin provider and blocks until
// ctx is cancelled.
func Run(ctx context.Context, conn *bus.Connection) {
	reg, err := platform.DefaultRegistry()
	if err != nil {
		println("[hal] no pin provider:", err.Error())
		conn.Publish(conn.NewMessage(StateTopic(),
			types.HALState{Level: "error", Status: "no_provider", TSms: timex.NowMs()}, true))
		return
	}
	RunWith(ctx, conn, reg)
}

// RunWith starts the HAL on reg.
func RunWith(ctx context.Context, conn *bus.Connection, reg Registry) {
	core.NewHAL(conn, reg).Run(ctx)
}

// ---- Topic helpers for HAL clients ----

func StateTopic() bus.Topic { return bus.T("hal", "state") }

// CapTopic is hal/cap/<domain>/<kind>/<name>/<leaf>.
func CapTopic(domain string, kind types.Kind, name, leaf string) bus.Topic {
	return bus.T("hal", "cap", domain, string(kind), name, leaf)
}

// ControlTopic is hal/cap/<domain>/<kind>/<name>/control/<verb>.
func ControlTopic(domain string, kind types.Kind, name, verb string) bus.Topic {
	return bus.T("hal", "cap", domain, string(kind), name, "control", verb)
}

// KindTopic matches one leaf of every capability of a kind.
func KindTopic(kind types.Kind, leaf string) bus.Topic {
	return bus.T("hal", "cap", "+", string(kind), "+", leaf)
}
