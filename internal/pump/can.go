package pump

import (
	"context"
	"fmt"
	"math"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"

	"github.com/san-kum/vasoloop/internal/dosing"
)

const (
	// CommandFrameID carries rate, flags and a rolling counter.
	CommandFrameID uint32 = 0x210
	// AlarmFrameID carries the alarm reason and a rolling counter.
	AlarmFrameID uint32 = 0x211

	// RateResolution is the rate value of one raw count, mcg/kg/min.
	RateResolution = 0.001
	// MaxWireRate is the largest rate a command frame can carry.
	MaxWireRate = math.MaxUint16 * RateResolution

	commandLength = 4
	alarmLength   = 2

	flagFallback = 16 // bit index inside Data
	flagAlarm    = 17
)

// Command is a decoded rate command frame.
type Command struct {
	Rate     float64
	Fallback bool
	Alarm    bool
	Counter  uint8
}

// EncodeCommand packs out into frame 0x210:
//
//	bytes 0-1  rate in 0.001 mcg/kg/min, little endian
//	byte  2    bit0 fallback, bit1 alarm
//	byte  3    rolling counter
func EncodeCommand(out dosing.ControlOutput, counter uint8) (can.Frame, error) {
	rate := out.CommandedRate
	if math.IsNaN(rate) || rate < 0 || rate > MaxWireRate {
		return can.Frame{}, fmt.Errorf("%w: %v", ErrRateOutOfRange, rate)
	}

	f := can.Frame{ID: CommandFrameID, Length: commandLength}
	f.Data.SetUnsignedBitsLittleEndian(0, 16, uint64(math.Round(rate/RateResolution)))
	f.Data.SetBit(flagFallback, out.UseFallback)
	f.Data.SetBit(flagAlarm, out.TriggerAlarm)
	f.Data[3] = counter

	if err := f.Validate(); err != nil {
		return can.Frame{}, fmt.Errorf("encode command: %w", err)
	}
	return f, nil
}

func DecodeCommand(f can.Frame) (Command, error) {
	if f.ID != CommandFrameID {
		return Command{}, fmt.Errorf("%w: 0x%X", ErrUnknownFrame, f.ID)
	}
	if f.Length < commandLength {
		return Command{}, fmt.Errorf("command frame expects %d bytes, got %d", commandLength, f.Length)
	}
	return Command{
		Rate:     float64(f.Data.UnsignedBitsLittleEndian(0, 16)) * RateResolution,
		Fallback: f.Data.Bit(flagFallback),
		Alarm:    f.Data.Bit(flagAlarm),
		Counter:  f.Data[3],
	}, nil
}

func EncodeAlarm(reason dosing.RejectReason, counter uint8) can.Frame {
	f := can.Frame{ID: AlarmFrameID, Length: alarmLength}
	f.Data[0] = uint8(reason)
	f.Data[1] = counter
	return f
}

// FrameWriter transmits frames onto a bus.
type FrameWriter interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

// SocketWriter writes to a Linux SocketCAN interface such as can0 or vcan0.
type SocketWriter struct {
	conn net.Conn
	tx   *socketcan.Transmitter
}

func DialSocketCAN(ctx context.Context, iface string) (*SocketWriter, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial: %w", err)
	}
	return &SocketWriter{
		conn: conn,
		tx:   socketcan.NewTransmitter(conn),
	}, nil
}

func (w *SocketWriter) WriteFrame(ctx context.Context, frame can.Frame) error {
	return w.tx.TransmitFrame(ctx, frame)
}

func (w *SocketWriter) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// CAN is a Pump whose commands travel as CAN frames.
type CAN struct {
	mu      sync.Mutex
	w       FrameWriter
	counter uint8
	rate    float64
}

func NewCAN(w FrameWriter) *CAN {
	return &CAN{w: w}
}

func (c *CAN) Command(ctx context.Context, out dosing.ControlOutput) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := EncodeCommand(out, c.counter)
	if err != nil {
		return err
	}
	if err := c.w.WriteFrame(ctx, f); err != nil {
		return fmt.Errorf("transmit command: %w", err)
	}
	c.counter++
	c.rate = out.CommandedRate
	return nil
}

func (c *CAN) Alarm(ctx context.Context, reason dosing.RejectReason) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.w.WriteFrame(ctx, EncodeAlarm(reason, c.counter)); err != nil {
		return fmt.Errorf("transmit alarm: %w", err)
	}
	c.counter++
	return nil
}

func (c *CAN) Rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

func (c *CAN) Close() error {
	return c.w.Close()
}
