// Package pump drives the infusion actuator that consumes controller
// commands.
//
// [Pump] mirrors the pump HAL contract: set the infusion rate, raise the
// alarm, read back the applied rate. [Memory] keeps everything in process
// for simulation and tests; [CAN] ships commands over a SocketCAN bus.
package pump

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/san-kum/vasoloop/internal/dosing"
	"github.com/san-kum/vasoloop/internal/sim"
)

var (
	// ErrRateOutOfRange indicates a rate the wire format cannot carry.
	ErrRateOutOfRange = errors.New("pump: rate out of range")

	// ErrUnknownFrame indicates a frame ID this package does not decode.
	ErrUnknownFrame = errors.New("pump: unknown frame")
)

type Pump interface {
	// Command applies one controller output.
	Command(ctx context.Context, out dosing.ControlOutput) error
	// Alarm raises the audible/visual alarm.
	Alarm(ctx context.Context, reason dosing.RejectReason) error
	// Rate returns the last applied rate in mcg/kg/min.
	Rate() float64
}

// Memory records every command and alarm it receives.
type Memory struct {
	mu       sync.Mutex
	rate     float64
	commands []dosing.ControlOutput
	alarms   []dosing.RejectReason
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Command(ctx context.Context, out dosing.ControlOutput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rate = out.CommandedRate
	m.commands = append(m.commands, out)
	return nil
}

func (m *Memory) Alarm(ctx context.Context, reason dosing.RejectReason) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alarms = append(m.alarms, reason)
	return nil
}

func (m *Memory) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate
}

func (m *Memory) Commands() []dosing.ControlOutput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dosing.ControlOutput(nil), m.commands...)
}

func (m *Memory) Alarms() []dosing.RejectReason {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dosing.RejectReason(nil), m.alarms...)
}

// Actuator feeds simulator ticks into a Pump, raising the alarm with the
// tick's reject reason.
type Actuator struct {
	ctx  context.Context
	pump Pump
}

func NewActuator(ctx context.Context, p Pump) *Actuator {
	return &Actuator{ctx: ctx, pump: p}
}

func (a *Actuator) Apply(tick sim.Tick) error {
	if err := a.pump.Command(a.ctx, tick.Output); err != nil {
		return fmt.Errorf("t=%.1fs: command pump: %w", tick.Time, err)
	}
	if tick.Output.TriggerAlarm {
		if err := a.pump.Alarm(a.ctx, tick.Reason); err != nil {
			return fmt.Errorf("t=%.1fs: raise alarm: %w", tick.Time, err)
		}
	}
	return nil
}
