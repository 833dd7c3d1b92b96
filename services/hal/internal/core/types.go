package core

import (
	"context"

	"envmon-go/errcode"
	"envmon-go/types"
)

// ---- Capability & device model ----

// CapAddr is the public address of one capability.
type CapAddr struct {
	Domain string
	Kind   string
	Name   string
}

type CapabilitySpec struct {
	Domain string // empty => inferred from Kind
	Kind   types.Kind
	Name   string // empty => device id
	Info   types.Info
}

// EnqueueResult is the immediate outcome of a control. OK means the work was
// accepted; results arrive later as Events.
type EnqueueResult struct {
	OK    bool
	Error errcode.Code
}

// Device is a HAL-managed device. Control must not block: long work is
// handed to a device-owned goroutine.
type Device interface {
	ID() string
	Capabilities() []CapabilitySpec
	Init(ctx context.Context) error
	Control(addr CapAddr, verb string, payload any) (EnqueueResult, error)
	Close() error
}

// Builder input
type BuilderInput struct {
	ID, Type string
	Params   any
	Res      Resources
}

type Builder interface {
	Build(ctx context.Context, in BuilderInput) (Device, error)
}
