package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/vasoloop/internal/analysis"
	"github.com/san-kum/vasoloop/internal/automation"
	"github.com/san-kum/vasoloop/internal/config"
	"github.com/san-kum/vasoloop/internal/dosing"
	"github.com/san-kum/vasoloop/internal/experiment"
	"github.com/san-kum/vasoloop/internal/export"
	"github.com/san-kum/vasoloop/internal/logger"
	"github.com/san-kum/vasoloop/internal/loop"
	"github.com/san-kum/vasoloop/internal/optim"
	"github.com/san-kum/vasoloop/internal/pump"
	"github.com/san-kum/vasoloop/internal/replay"
	"github.com/san-kum/vasoloop/internal/sim"
	"github.com/san-kum/vasoloop/internal/storage"
	"github.com/san-kum/vasoloop/internal/tui"
)

var (
	dataDir  string
	logLevel string

	configFile string
	preset     string

	dt         float64
	duration   float64
	period     float64
	target     float64
	seed       int64
	integrator string
	controller string

	initialRate  float64
	minRate      float64
	maxRate      float64
	maxDelta     float64
	fallbackRate float64

	noise   float64
	dropout float64
	garbage float64
	lowConf float64

	runs        int
	fixtureOut  string
	watch       bool
	frameRate   int
	noSave      bool
	canIface    string
	tickPeriod  time.Duration
	trace       bool
	outputPath  string
	candidates  []float64
	penalty     float64
	summaryOnly bool

	sweepParam string
	sweepFrom  float64
	sweepTo    float64
	sweepSteps int
	trials     int
	perturb    float64
	spread     float64

	chartWidth  int
	chartHeight int
)

func main() {
	defer logger.Sync()

	rootCmd := &cobra.Command{
		Use:           "vasoloop",
		Short:         "closed-loop vasopressor safety controller lab",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				return fmt.Errorf("unknown log level: %s", logLevel)
			}
			logger.SetLevel(lvl)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".vasoloop", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run [profile]",
		Short: "simulate a patient under the safety controller",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addSimFlags(runCmd)
	runCmd.Flags().IntVar(&runs, "runs", 1, "number of seeds to run in parallel")
	runCmd.Flags().StringVar(&fixtureOut, "fixture", "", "write the estimator samples to a JSONL fixture")
	runCmd.Flags().BoolVar(&watch, "watch", false, "redraw a MAP trace while running")
	runCmd.Flags().IntVar(&frameRate, "fps", 10, "frame rate for --watch")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	runCmd.Flags().StringVar(&canIface, "can-iface", "", "SocketCAN interface for the pump (memory pump when empty)")

	replayCmd := &cobra.Command{
		Use:   "replay [fixture]",
		Short: "drive the control loop from a JSONL fixture",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplay,
	}
	addLimitFlags(replayCmd)
	replayCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	replayCmd.Flags().StringVar(&preset, "preset", "", "drug library preset")
	replayCmd.Flags().StringVar(&canIface, "can-iface", "", "SocketCAN interface for the pump (memory pump when empty)")
	replayCmd.Flags().DurationVar(&tickPeriod, "period", 0, "tick period; 0 replays as fast as possible")
	replayCmd.Flags().BoolVar(&trace, "trace", false, "print every tick")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot MAP and infusion rate of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "detect the bang-bang limit cycle",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (stdout when empty)")

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "render a run as an SVG chart",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (stdout when empty)")
	exportSVGCmd.Flags().IntVar(&chartWidth, "width", 1200, "chart width (px)")
	exportSVGCmd.Flags().IntVar(&chartHeight, "height", 600, "chart height (px)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list drug library presets",
		RunE:  listPresets,
	}

	validateCmd := &cobra.Command{
		Use:   "validate [config]",
		Short: "validate a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(args[0]); err != nil {
				return err
			}
			fmt.Printf("%s: ok\n", args[0])
			return nil
		},
	}

	tuneCmd := &cobra.Command{
		Use:   "tune [profile]",
		Short: "grid search the step size",
		Args:  cobra.MaximumNArgs(1),
		RunE:  tuneMaxDelta,
	}
	addSimFlags(tuneCmd)
	tuneCmd.Flags().Float64SliceVar(&candidates, "candidates", []float64{0.005, 0.01, 0.02, 0.03, 0.05}, "max delta candidates")
	tuneCmd.Flags().Float64Var(&penalty, "penalty", 0.5, "chatter penalty per reversal per tick")
	tuneCmd.Flags().BoolVar(&summaryOnly, "summary", false, "print only the best candidate")

	liveCmd := &cobra.Command{
		Use:   "live [profile]",
		Short: "step a simulation interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addSimFlags(liveCmd)

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a scripted batch of simulations",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	addSimFlags(scenarioCmd)
	scenarioCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the runs")

	sweepCmd := &cobra.Command{
		Use:   "sweep [profile]",
		Short: "sweep a patient parameter",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	addSimFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "param", "gain", "patient parameter (baseline, gain, sensitivity, tau, lag)")
	sweepCmd.Flags().Float64Var(&sweepFrom, "from", 40, "first value")
	sweepCmd.Flags().Float64Var(&sweepTo, "to", 250, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 8, "number of points")

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo [profile]",
		Short: "check dosing bounds over randomized patients",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMonteCarlo,
	}
	addSimFlags(monteCarloCmd)
	monteCarloCmd.Flags().IntVar(&trials, "trials", 50, "number of trials")
	monteCarloCmd.Flags().Float64Var(&perturb, "perturb", 0.3, "relative spread of gain and tau")
	monteCarloCmd.Flags().Float64Var(&spread, "baseline-spread", 10, "spread of baseline MAP (mmHg)")

	rootCmd.AddCommand(runCmd, replayCmd, listCmd, plotCmd, analyzeCmd, exportJSONCmd, exportSVGCmd, presetsCmd, validateCmd, tuneCmd, liveCmd,
		scenarioCmd, sweepCmd, monteCarloCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addLimitFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&initialRate, "rate", 0, "initial infusion rate (mcg/kg/min)")
	cmd.Flags().Float64Var(&minRate, "min-rate", 0, "minimum rate (mcg/kg/min)")
	cmd.Flags().Float64Var(&maxRate, "max-rate", 0, "maximum rate (mcg/kg/min)")
	cmd.Flags().Float64Var(&maxDelta, "max-delta", 0, "rate change per step (mcg/kg/min)")
	cmd.Flags().Float64Var(&fallbackRate, "fallback-rate", 0, "fallback rate (mcg/kg/min)")
}

func addSimFlags(cmd *cobra.Command) {
	addLimitFlags(cmd)
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "drug library preset")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "integration step (s)")
	cmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration (s)")
	cmd.Flags().Float64Var(&period, "period", config.DefaultControlPeriod, "control period (s)")
	cmd.Flags().Float64Var(&target, "target", config.DefaultTargetMAP, "clinician target MAP (mmHg)")
	cmd.Flags().Int64Var(&seed, "seed", config.DefaultSeed, "random seed")
	cmd.Flags().StringVar(&integrator, "integrator", "rk4", "integrator")
	cmd.Flags().StringVar(&controller, "controller", "safety", "controller (safety, fixed)")
	cmd.Flags().Float64Var(&noise, "noise", 0, "estimator noise (mmHg)")
	cmd.Flags().Float64Var(&dropout, "dropout", 0, "estimator dropout probability")
	cmd.Flags().Float64Var(&garbage, "garbage", 0, "probability of a non-finite prediction")
	cmd.Flags().Float64Var(&lowConf, "low-confidence", 0, "probability of an untrusted confidence")
}

// buildConfig layers defaults, preset, config file, positional profile and
// changed flags, in that order.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if len(args) > 0 {
		cfg.Profile = args[0]
	}

	flags := cmd.Flags()
	overrides := []struct {
		name string
		dst  *float64
		src  float64
	}{
		{"dt", &cfg.Dt, dt},
		{"time", &cfg.Duration, duration},
		{"period", &cfg.ControlPeriod, period},
		{"target", &cfg.TargetMAP, target},
		{"rate", &cfg.Limits.CurrentRate, initialRate},
		{"min-rate", &cfg.Limits.MinRate, minRate},
		{"max-rate", &cfg.Limits.MaxRate, maxRate},
		{"max-delta", &cfg.Limits.MaxDelta, maxDelta},
		{"fallback-rate", &cfg.Limits.FallbackRate, fallbackRate},
		{"noise", &cfg.Estimator.NoiseMMHg, noise},
		{"dropout", &cfg.Estimator.DropoutProb, dropout},
		{"garbage", &cfg.Estimator.GarbageProb, garbage},
		{"low-confidence", &cfg.Estimator.LowConfProb, lowConf},
	}
	for _, o := range overrides {
		// replay reuses --period as a wall-clock duration
		if f := flags.Lookup(o.name); f != nil && f.Changed && f.Value.Type() == "float64" {
			*o.dst = o.src
		}
	}
	if flags.Lookup("seed") != nil && flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Lookup("integrator") != nil && flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Lookup("controller") != nil && flags.Changed("controller") {
		cfg.Controller = controller
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	ctx = logger.WithKV(ctx, "profile", cfg.Profile, "drug", cfg.Drug)

	registry := experiment.NewRegistry()

	if runs > 1 {
		return runEnsemble(ctx, cfg, registry)
	}

	exp, err := experiment.New(cfg, registry)
	if err != nil {
		return err
	}

	p, closePump, err := openPump(ctx)
	if err != nil {
		return err
	}
	defer closePump()
	exp.AttachPump(ctx, p)

	var renderer *tui.LiveRenderer
	if watch {
		renderer = tui.NewLiveRenderer(os.Stdout, cfg.Profile, frameRate)
		exp.Simulator().AddObserver(renderer)
		renderer.Start()
	}

	logger.DebugKV(ctx, "simulation starting", "duration", cfg.Duration, "seed", cfg.Seed)
	start := time.Now()
	result, err := exp.Run(ctx)
	if renderer != nil {
		renderer.Stop()
	}
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("completed in %v\n", elapsed)
	if !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(exp.Metadata(result), result)
		if err != nil {
			return err
		}
		logger.InfoKV(ctx, "run saved", "run_id", runID, "dir", dataDir)
		fmt.Printf("run id: %s\n", runID)
	}
	if fixtureOut != "" {
		if err := replay.Create(fixtureOut, replay.FromResult(result)); err != nil {
			return err
		}
		fmt.Printf("fixture: %s\n", fixtureOut)
	}

	fmt.Printf("ticks: %d\n", len(result.Ticks))
	fmt.Printf("pump rate: %.3f mcg/kg/min\n", p.Rate())
	if m, ok := p.(*pump.Memory); ok {
		fmt.Printf("pump alarms: %d\n", len(m.Alarms()))
	}
	fmt.Println("\nmetrics:")
	printMetrics(result.Metrics)
	return nil
}

func runEnsemble(ctx context.Context, cfg *config.Config, registry *experiment.Registry) error {
	start := time.Now()
	results, err := experiment.RunEnsemble(ctx, cfg, registry, runs)
	if err != nil {
		return err
	}
	fmt.Printf("completed %d runs in %v\n\n", len(results), time.Since(start))

	names := sortedNames(results[0].Metrics)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprint(w, "SEED")
	for _, name := range names {
		fmt.Fprintf(w, "\t%s", name)
	}
	fmt.Fprintln(w)

	means := make(map[string]float64, len(names))
	for i, res := range results {
		fmt.Fprintf(w, "%d", cfg.Seed+int64(i))
		for _, name := range names {
			fmt.Fprintf(w, "\t%.4f", res.Metrics[name])
			means[name] += res.Metrics[name] / float64(len(results))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprint(w, "mean")
	for _, name := range names {
		fmt.Fprintf(w, "\t%.4f", means[name])
	}
	fmt.Fprintln(w)
	return w.Flush()
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, nil)
	if err != nil {
		return err
	}

	records, err := replay.Open(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	ctx = logger.WithKV(ctx, "fixture", args[0])

	p, closePump, err := openPump(ctx)
	if err != nil {
		return err
	}
	defer closePump()
	if canIface != "" {
		ctx = logger.WithKV(ctx, "iface", canIface)
	}

	var fallbacks, alarms int
	sink := loop.SinkFunc(func(tk loop.Tick) {
		if tk.Output.UseFallback {
			fallbacks++
		}
		if tk.Output.TriggerAlarm {
			alarms++
		}
		if trace {
			rec := records[tk.Seq]
			fmt.Printf("%6d  t=%-8.1f %-8s rate=%.3f  %s\n",
				tk.Seq, rec.T, tk.Output.Mode(), tk.Output.CommandedRate, tk.Reason)
		}
	})

	l, err := loop.New(replay.NewSource(records), p, cfg.Limits, tickPeriod, loop.WithSink(sink))
	if err != nil {
		return err
	}
	if err := l.Run(ctx); err != nil {
		return err
	}

	fmt.Printf("ticks: %d\n", l.Steps())
	fmt.Printf("fallbacks: %d\n", fallbacks)
	fmt.Printf("alarms: %d\n", alarms)
	fmt.Printf("final rate: %.3f mcg/kg/min\n", p.Rate())
	fmt.Printf("tracked rate: %.3f mcg/kg/min\n", l.Limits().CurrentRate)
	return nil
}

// openPump dials the CAN pump when --can-iface is set and falls back to an
// in-memory pump.
func openPump(ctx context.Context) (pump.Pump, func(), error) {
	if canIface == "" {
		return pump.NewMemory(), func() {}, nil
	}
	w, err := pump.DialSocketCAN(ctx, canIface)
	if err != nil {
		return nil, nil, err
	}
	c := pump.NewCAN(w)
	return c, func() { _ = c.Close() }, nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROFILE\tDRUG\tTIME\tDURATION\tCTRL\tIN RANGE")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0fs\t%s\t%.1f%%\n",
			run.ID,
			run.Profile,
			run.Drug,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Controller,
			100*run.Metrics["time_in_range"],
		)
	}
	return w.Flush()
}

func loadRun(runID string) (*storage.RunMetadata, []sim.Tick, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	ticks, err := st.LoadTicks(runID)
	if err != nil {
		return nil, nil, err
	}
	if len(ticks) == 0 {
		return nil, nil, fmt.Errorf("run %s has no ticks", runID)
	}
	return meta, ticks, nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, ticks, err := loadRun(args[0])
	if err != nil {
		return err
	}
	res := &sim.Result{Ticks: ticks}

	targets := make([]float64, len(ticks))
	for i, tk := range ticks {
		targets[i] = tk.Target
	}

	fmt.Printf("run %s (%s, %s)\n\n", meta.ID, meta.Profile, meta.Drug)
	fmt.Println(asciigraph.PlotMany([][]float64{res.MAPs(), targets},
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.SeriesColors(asciigraph.Green, asciigraph.Yellow),
		asciigraph.Caption("MAP vs target (mmHg)"),
	))
	fmt.Println()
	fmt.Println(asciigraph.Plot(res.Rates(),
		asciigraph.Height(8),
		asciigraph.Width(80),
		asciigraph.Precision(3),
		asciigraph.Caption("commanded rate (mcg/kg/min)"),
	))
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, ticks, err := loadRun(args[0])
	if err != nil {
		return err
	}
	res := &sim.Result{Ticks: ticks}

	fmt.Printf("limit cycle analysis: %s\n", meta.ID)
	fmt.Printf("profile: %s  control period: %.1fs\n\n", meta.Profile, meta.ControlPeriod)

	// Steady-state window: the last three quarters of the run.
	settle := len(ticks) / 4
	series := map[string][]float64{
		"MAP":  res.MAPs()[settle:],
		"rate": res.Rates()[settle:],
	}

	ps := analysis.PowerSpectrum(series["MAP"])
	if len(ps) > 2 {
		fmt.Println(asciigraph.Plot(ps[1:],
			asciigraph.Height(12),
			asciigraph.Width(80),
			asciigraph.Caption("power spectrum (MAP)"),
		))
		fmt.Println()
	}

	for _, name := range []string{"MAP", "rate"} {
		osc, err := analysis.DominantPeriod(series[name], meta.ControlPeriod)
		if err != nil {
			return err
		}
		fmt.Printf("%-5s dominant period: %.1f s (%.4f hz, bin %d)\n", name, osc.Period, osc.Frequency, osc.Bin)
	}

	fallbacks := 0
	for _, tk := range ticks {
		if tk.Output.Mode() == dosing.ModeFallback {
			fallbacks++
		}
	}
	fmt.Printf("fallback ticks: %d of %d\n", fallbacks, len(ticks))
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, ticks, err := loadRun(args[0])
	if err != nil {
		return err
	}
	data := storage.NewExport(*meta, ticks)
	if outputPath != "" {
		return storage.ExportJSONFile(outputPath, data)
	}
	return storage.ExportJSON(os.Stdout, data)
}

func exportSVG(cmd *cobra.Command, args []string) error {
	meta, ticks, err := loadRun(args[0])
	if err != nil {
		return err
	}
	title := fmt.Sprintf("%s  %s  %s", meta.ID, meta.Profile, meta.Drug)

	if outputPath == "" {
		return export.RunToSVG(os.Stdout, title, ticks, chartWidth, chartHeight)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	if err := export.RunToSVG(f, title, ticks, chartWidth, chartHeight); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DRUG\tMIN\tMAX\tDELTA\tFALLBACK\tNOTES")
	for _, name := range config.ListPresets() {
		d := config.Drugs[name]
		fmt.Fprintf(w, "%s\t%.3f\t%.3f\t%.3f\t%.3f\t%s\n",
			d.Name, d.Limits.MinRate, d.Limits.MaxRate, d.Limits.MaxDelta, d.Limits.FallbackRate, d.Notes)
	}
	return w.Flush()
}

func tuneMaxDelta(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	best, score, trials, err := optim.TuneMaxDelta(ctx, cfg, experiment.NewRegistry(), candidates, penalty)
	if err != nil {
		return err
	}

	if !summaryOnly {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MAX DELTA\tSCORE\tERROR")
		for _, tr := range trials {
			msg := ""
			if tr.Err != nil {
				msg = tr.Err.Error()
			}
			fmt.Fprintf(w, "%.4f\t%.4f\t%s\n", tr.Params["max_delta"], tr.Score, msg)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Println()
	}
	fmt.Printf("best max delta: %.4f mcg/kg/min (score %.4f)\n", best, score)
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg, experiment.NewRegistry())
	if err != nil {
		return err
	}
	session, err := exp.Start()
	if err != nil {
		return err
	}
	return tui.RunLive(session, cfg.Profile)
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	base, err := buildConfig(cmd, nil)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("scenario: %s (%d steps)\n", sc.Name, len(sc.Steps))
	results, err := automation.RunScenario(ctx, sc, base, experiment.NewRegistry())
	if err != nil {
		return err
	}

	var st *storage.Store
	if !noSave {
		st = storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tPROFILE\tDRUG\tIN RANGE\tFALLBACK\tVIOLATIONS\tRUN ID")
	for _, r := range results {
		runID := "-"
		if st != nil {
			if runID, err = st.Save(r.Metadata, r.Result); err != nil {
				return err
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.3f\t%.3f\t%d\t%s\n",
			r.Name, r.Config.Profile, r.Config.Drug,
			r.Result.Metrics["time_in_range"], r.Result.Metrics["fallback_fraction"],
			len(automation.CheckBounds(r.Result.Ticks, r.Config.Limits)), runID)
	}
	return w.Flush()
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	sweep := &automation.ParameterSweep{
		ParamName: sweepParam,
		ParamMin:  sweepFrom,
		ParamMax:  sweepTo,
		NumSteps:  sweepSteps,
	}
	results, err := automation.RunSweep(ctx, sweep, cfg, experiment.NewRegistry())
	if err != nil {
		return err
	}

	names := sortedNames(results[0].Metrics)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprint(w, sweepParam)
	for _, name := range names {
		fmt.Fprintf(w, "\t%s", name)
	}
	fmt.Fprintln(w)
	for _, r := range results {
		fmt.Fprintf(w, "%.4g", r.ParamValue)
		for _, name := range names {
			fmt.Fprintf(w, "\t%.4f", r.Metrics[name])
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	mc := &automation.MonteCarloConfig{
		NumTrials:      trials,
		Perturbation:   perturb,
		BaselineSpread: spread,
		Seed:           cfg.Seed,
	}
	results, err := automation.RunMonteCarlo(ctx, mc, cfg, experiment.NewRegistry())
	if err != nil {
		return err
	}

	safe, unsafe := automation.MonteCarloStats(results)
	for _, r := range results {
		for _, v := range r.Violations {
			fmt.Printf("trial %d t=%.1fs: %s\n", r.TrialID, v.Time, v.Message)
		}
	}
	fmt.Printf("trials: %d  within bounds: %d  violating: %d\n", len(results), safe, unsafe)
	if unsafe > 0 {
		return fmt.Errorf("%d trials violated dosing bounds", unsafe)
	}
	return nil
}

func printMetrics(m map[string]float64) {
	for _, name := range sortedNames(m) {
		fmt.Printf("  %s: %.6f\n", name, m[name])
	}
}

func sortedNames(m map[string]float64) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
