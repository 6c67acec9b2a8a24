// Package loop embeds the dosing step in a real-time control loop.
//
// Each tick pulls one sample from a [Source], runs [dosing.Step] against
// the loop's own limits, and pushes the result to a [pump.Pump]. The loop
// is the single owner of its limits; nothing else mutates the current
// rate while Run is active.
package loop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/san-kum/vasoloop/internal/dosing"
	"github.com/san-kum/vasoloop/internal/logger"
	"github.com/san-kum/vasoloop/internal/pump"
)

// ErrInvalidPeriod indicates a negative tick period.
var ErrInvalidPeriod = errors.New("loop: period must not be negative")

// Source yields one estimator sample per tick. A nil sample or a non-EOF
// error counts as a missing sample; io.EOF ends the loop.
type Source interface {
	Next(ctx context.Context) (*dosing.ControlInputs, error)
}

// Sink receives every completed tick.
type Sink interface {
	Publish(Tick)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Tick)

func (f SinkFunc) Publish(t Tick) { f(t) }

type Tick struct {
	Seq    int
	At     time.Time
	Inputs *dosing.ControlInputs
	Output dosing.ControlOutput
	Reason dosing.RejectReason
}

type Option func(*Loop)

// WithSink publishes every tick to s.
func WithSink(s Sink) Option {
	return func(l *Loop) { l.sink = s }
}

// WithClock overrides time.Now for tick timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

type Loop struct {
	source Source
	pump   pump.Pump
	limits dosing.DosingLimits
	period time.Duration
	sink   Sink
	now    func() time.Time

	seq  int
	mode dosing.Mode
}

// New validates limits and builds a loop. A zero period runs ticks back to
// back, which is how fixtures are replayed.
func New(src Source, p pump.Pump, limits dosing.DosingLimits, period time.Duration, opts ...Option) (*Loop, error) {
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("loop limits: %w", err)
	}
	if period < 0 {
		return nil, ErrInvalidPeriod
	}

	l := &Loop{
		source: src,
		pump:   p,
		limits: limits,
		period: period,
		now:    time.Now,
		mode:   dosing.ModeTracking,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Limits returns a copy of the loop's limits. Not safe to call while Run
// is active.
func (l *Loop) Limits() dosing.DosingLimits {
	return l.limits
}

// Steps returns the number of completed ticks.
func (l *Loop) Steps() int {
	return l.seq
}

// Run ticks until the source is exhausted (nil error) or ctx is done
// (ctx.Err()). Pump failures stop the loop and are returned wrapped.
func (l *Loop) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "loop")
	logger.InfoKV(ctx, "control loop started",
		"period", l.period,
		"current_rate", l.limits.CurrentRate,
		"fallback_rate", l.limits.FallbackRate,
	)

	var tick <-chan time.Time
	if l.period > 0 {
		ticker := time.NewTicker(l.period)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				logger.WarnKV(ctx, "context canceled; stopping loop", "ticks", l.seq)
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			logger.WarnKV(ctx, "context canceled; stopping loop", "ticks", l.seq)
			return err
		}

		done, err := l.Tick(ctx)
		if err != nil {
			return err
		}
		if done {
			logger.InfoKV(ctx, "source exhausted", "ticks", l.seq, "rate", l.limits.CurrentRate)
			return nil
		}
	}
}

// Tick runs a single iteration without waiting. It reports done when the
// source returned io.EOF.
func (l *Loop) Tick(ctx context.Context) (bool, error) {
	in, err := l.source.Next(ctx)
	switch {
	case errors.Is(err, io.EOF):
		return true, nil
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		logger.DebugKV(ctx, "sample unavailable", "tick", l.seq, "error", err)
		in = nil
	}

	out := dosing.Step(&l.limits, in)
	reason := dosing.InputReason(in)

	if err := l.pump.Command(ctx, out); err != nil {
		return false, fmt.Errorf("tick %d: command pump: %w", l.seq, err)
	}
	if out.TriggerAlarm {
		if err := l.pump.Alarm(ctx, reason); err != nil {
			return false, fmt.Errorf("tick %d: raise alarm: %w", l.seq, err)
		}
	}

	l.logTransition(ctx, out.Mode(), reason, out.CommandedRate)

	if l.sink != nil {
		l.sink.Publish(Tick{
			Seq:    l.seq,
			At:     l.now(),
			Inputs: in,
			Output: out,
			Reason: reason,
		})
	}
	l.seq++
	return false, nil
}

func (l *Loop) logTransition(ctx context.Context, mode dosing.Mode, reason dosing.RejectReason, rate float64) {
	if mode == l.mode {
		return
	}
	l.mode = mode
	if mode == dosing.ModeFallback {
		logger.WarnKV(ctx, "entering fallback", "tick", l.seq, "reason", reason.String(), "rate", rate)
		return
	}
	logger.InfoKV(ctx, "tracking resumed", "tick", l.seq, "rate", rate)
}
