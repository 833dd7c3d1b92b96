package gpio_dout

import (
	"context"

	"envmon-go/services/hal/internal/core"
	"envmon-go/types"
)

func init() { core.RegisterBuilder("gpio_led", builderLED{}) }

type builderLED struct{}

func (builderLED) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, code := core.As[types.LEDParams](in.Params)
	if code != "" {
		return nil, code
	}
	ph, err := in.Res.Reg.ClaimPin(in.ID, p.Pin, core.FuncGPIOOut)
	if err != nil {
		return nil, err
	}
	return New(in.ID, p, ph.AsGPIO(), in.Res), nil
}
