package loop_test

import (
	"context"
	"errors"
	"io"
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/san-kum/vasoloop/internal/dosing"
	"github.com/san-kum/vasoloop/internal/logger"
	"github.com/san-kum/vasoloop/internal/loop"
	"github.com/san-kum/vasoloop/internal/pump"
)

type sample struct {
	in  *dosing.ControlInputs
	err error
}

type sliceSource struct {
	samples []sample
	pos     int
}

func (s *sliceSource) Next(ctx context.Context) (*dosing.ControlInputs, error) {
	if s.pos >= len(s.samples) {
		return nil, io.EOF
	}
	smp := s.samples[s.pos]
	s.pos++
	return smp.in, smp.err
}

type endlessSource struct{}

func (endlessSource) Next(ctx context.Context) (*dosing.ControlInputs, error) {
	return trusted(60), nil
}

type brokenPump struct {
	*pump.Memory
}

func (brokenPump) Command(ctx context.Context, out dosing.ControlOutput) error {
	return errors.New("bus off")
}

func trusted(predicted float64) *dosing.ControlInputs {
	return &dosing.ControlInputs{
		PredictedMAP:    predicted,
		HypotensionRisk: 0.5,
		Confidence:      0.9,
		TargetMAP:       65,
	}
}

func limits() dosing.DosingLimits {
	return dosing.DosingLimits{
		CurrentRate:  0.10,
		MinRate:      0.00,
		MaxRate:      0.50,
		MaxDelta:     0.02,
		FallbackRate: 0.05,
	}
}

var _ = Describe("Loop", func() {
	var (
		mem   *pump.Memory
		ticks []loop.Tick
		sink  loop.Sink
	)

	BeforeEach(func() {
		mem = pump.NewMemory()
		ticks = nil
		sink = loop.SinkFunc(func(t loop.Tick) { ticks = append(ticks, t) })
	})

	Context("when constructed", func() {
		It("should reject invalid limits", func() {
			bad := limits()
			bad.MinRate = 1
			_, err := loop.New(&sliceSource{}, mem, bad, 0)
			Expect(err).To(MatchError(dosing.ErrRateBounds))
		})

		It("should reject a negative period", func() {
			_, err := loop.New(&sliceSource{}, mem, limits(), -time.Second)
			Expect(err).To(MatchError(loop.ErrInvalidPeriod))
		})
	})

	Context("when replaying samples back to back", func() {
		It("should step the rate and stop at EOF", func() {
			src := &sliceSource{samples: []sample{
				{in: trusted(60)},
				{in: trusted(60)},
				{in: trusted(70)},
			}}
			l, err := loop.New(src, mem, limits(), 0, loop.WithSink(sink))
			Expect(err).ToNot(HaveOccurred())

			Expect(l.Run(context.Background())).To(Succeed())

			Expect(l.Steps()).To(Equal(3))
			Expect(mem.Commands()).To(HaveLen(3))
			Expect(mem.Commands()[0].CommandedRate).To(BeNumerically("~", 0.12, 1e-9))
			Expect(mem.Commands()[1].CommandedRate).To(BeNumerically("~", 0.14, 1e-9))
			Expect(mem.Commands()[2].CommandedRate).To(BeNumerically("~", 0.12, 1e-9))
			Expect(l.Limits().CurrentRate).To(BeNumerically("~", 0.12, 1e-9))
			Expect(mem.Alarms()).To(BeEmpty())
			Expect(ticks).To(HaveLen(3))
			Expect(ticks[2].Seq).To(Equal(2))
		})

		It("should fall back and alarm on missing or untrusted samples", func() {
			lowConf := trusted(60)
			lowConf.Confidence = 0.3
			garbage := trusted(math.NaN())
			src := &sliceSource{samples: []sample{
				{in: nil},
				{err: errors.New("inference timeout")},
				{in: lowConf},
				{in: garbage},
			}}
			l, err := loop.New(src, mem, limits(), 0, loop.WithSink(sink))
			Expect(err).ToNot(HaveOccurred())

			Expect(l.Run(context.Background())).To(Succeed())

			for _, out := range mem.Commands() {
				Expect(out.CommandedRate).To(Equal(0.05))
				Expect(out.UseFallback).To(BeTrue())
				Expect(out.TriggerAlarm).To(BeTrue())
			}
			Expect(mem.Alarms()).To(Equal([]dosing.RejectReason{
				dosing.ReasonMissing,
				dosing.ReasonMissing,
				dosing.ReasonConfidenceLow,
				dosing.ReasonPredictedNotFinite,
			}))
			Expect(l.Limits().CurrentRate).To(Equal(0.10))
		})

		It("should resume tracking from the last tracked rate", func() {
			src := &sliceSource{samples: []sample{
				{in: trusted(60)},
				{in: nil},
				{in: trusted(60)},
			}}
			l, err := loop.New(src, mem, limits(), 0)
			Expect(err).ToNot(HaveOccurred())

			Expect(l.Run(context.Background())).To(Succeed())

			cmds := mem.Commands()
			Expect(cmds[0].CommandedRate).To(BeNumerically("~", 0.12, 1e-9))
			Expect(cmds[1].CommandedRate).To(Equal(0.05))
			Expect(cmds[2].CommandedRate).To(BeNumerically("~", 0.14, 1e-9))
		})

		It("should log mode transitions", func() {
			core, logs := observer.New(zapcore.DebugLevel)
			ctx := logger.ToContext(context.Background(), zap.New(core).Sugar())
			src := &sliceSource{samples: []sample{
				{in: trusted(60)},
				{in: nil},
				{in: nil},
				{in: trusted(60)},
			}}
			l, err := loop.New(src, mem, limits(), 0)
			Expect(err).ToNot(HaveOccurred())

			Expect(l.Run(ctx)).To(Succeed())

			Expect(logs.FilterMessage("entering fallback").Len()).To(Equal(1))
			Expect(logs.FilterMessage("tracking resumed").Len()).To(Equal(1))
		})
	})

	Context("when the pump fails", func() {
		It("should stop and return the wrapped error", func() {
			src := &sliceSource{samples: []sample{{in: trusted(60)}}}
			l, err := loop.New(src, brokenPump{mem}, limits(), 0)
			Expect(err).ToNot(HaveOccurred())

			err = l.Run(context.Background())
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("command pump"))
			Expect(l.Steps()).To(Equal(0))
		})
	})

	Context("when running on a ticker", func() {
		It("should stop when the context is canceled", func() {
			l, err := loop.New(endlessSource{}, mem, limits(), time.Millisecond)
			Expect(err).ToNot(HaveOccurred())

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			Expect(l.Run(ctx)).To(MatchError(context.DeadlineExceeded))
			Expect(l.Steps()).To(BeNumerically(">", 0))
			Expect(l.Limits().CurrentRate).To(BeNumerically("<=", 0.50))
		})
	})
})
