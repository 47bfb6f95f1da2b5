package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"dope/config"
	"dope/core/events"
	"dope/core/state"
	"dope/crypto"
	"dope/native/period"
	"dope/native/settlement"
	"dope/observability"
	"dope/observability/eventlog"
	"dope/observability/logging"
	"dope/observability/metrics"
	dopeotel "dope/observability/otel"
	"dope/storage"
)

const (
	initCommand   = "init"
	replayCommand = "replay"
	phasesCommand = "phases"
	statusCommand = "status"
	defaultConfig = "./dope.toml"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 1
	}
	var err error
	switch args[0] {
	case initCommand:
		err = runInit(args[1:], stdout)
	case replayCommand:
		var failures int
		failures, err = runReplay(args[1:], stdout, stderr)
		if err == nil && failures > 0 {
			fmt.Fprintf(stderr, "%d step(s) did not match expectations\n", failures)
			return 2
		}
	case phasesCommand:
		err = runPhases(args[1:], stdout, stderr)
	case statusCommand:
		err = runStatus(args[1:], stdout, stderr)
	default:
		usage(stderr)
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: dopectl <command> [flags]")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  init    write a default configuration file")
	fmt.Fprintln(w, "  replay  run a YAML scenario against the ledger")
	fmt.Fprintln(w, "  phases  print the phase flags at a ledger time")
	fmt.Fprintln(w, "  status  print an account's positions")
}

func runInit(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(initCommand, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path of the configuration file to write")
	force := fs.Bool("force", false, "Overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*force {
		if _, err := os.Stat(*configPath); err == nil {
			return fmt.Errorf("config %s already exists (use -force to overwrite)", *configPath)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	if err := config.Save(*configPath, config.Default()); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", *configPath)
	return nil
}

func runReplay(args []string, stdout, stderr io.Writer) (int, error) {
	fs := flag.NewFlagSet(replayCommand, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the protocol config file")
	scenarioPath := fs.String("scenario", "", "Path to the YAML scenario")
	if err := fs.Parse(args); err != nil {
		return 0, err
	}
	if strings.TrimSpace(*scenarioPath) == "" {
		return 0, fmt.Errorf("-scenario is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return 0, err
	}
	sc, err := LoadScenario(*scenarioPath)
	if err != nil {
		return 0, err
	}

	ctx := context.Background()
	a, err := openApp(ctx, cfg, stderr)
	if err != nil {
		return 0, err
	}
	defer a.Close(ctx)

	r, err := newRunner(a.engine, cfg.Sale, sc, &a.clock, stdout)
	if err != nil {
		return 0, err
	}
	fmt.Fprintf(stdout, "run %s\n", a.runID)
	failures, err := r.run(ctx, sc)
	if err != nil {
		return failures, err
	}
	if err := a.report(ctx, stdout); err != nil {
		return failures, err
	}
	return failures, nil
}

func runPhases(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet(phasesCommand, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the protocol config file")
	at := fs.Uint64("at", 0, "Ledger time in seconds (default: wall clock)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := openApp(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	a.setClock(*at)

	flags := a.engine.GetCurrentPhases().Slice()
	for i, p := range period.Phases() {
		bounds, err := a.engine.GetStartAndEndPhaseOf(p)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%-12s [%d, %d) active=%t\n", p, bounds.Start, bounds.End, flags[i])
	}
	return nil
}

func runStatus(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet(statusCommand, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the protocol config file")
	account := fs.String("account", "", "Account address (0x-prefixed)")
	at := fs.Uint64("at", 0, "Ledger time in seconds (default: wall clock)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, ok := crypto.ParseAddress(*account)
	if !ok {
		return fmt.Errorf("-account must be a hex address")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := openApp(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	a.setClock(*at)

	staked, err := a.engine.GetCurrentStakeAmount(addr)
	if err != nil {
		return err
	}
	satisfied, err := a.engine.IsSatisfied(addr)
	if err != nil {
		return err
	}
	share, locked, err := a.engine.GetShareAndCollateral(addr)
	if err != nil {
		return err
	}
	deposited, err := a.engine.GetDepositedAmount(addr)
	if err != nil {
		return err
	}
	payout, err := a.engine.ClaimablePayout(addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "account     %s\n", addr.Hex())
	fmt.Fprintf(stdout, "staked      %s (eligible=%t)\n", staked, satisfied)
	fmt.Fprintf(stdout, "contributed %s (locked=%s)\n", share, locked)
	fmt.Fprintf(stdout, "deposited   %s\n", deposited)
	fmt.Fprintf(stdout, "claimable   %s\n", payout)
	return nil
}

// app holds the collaborators of one CLI invocation.
type app struct {
	cfg      *config.ProtocolConfig
	logger   *slog.Logger
	manager  *state.Manager
	engine   *settlement.Engine
	sink     *eventlog.Sink
	runID    uuid.UUID
	clock    uint64
	shutdown func(context.Context) error
}

func openApp(ctx context.Context, cfg *config.ProtocolConfig, logOut io.Writer) (*app, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(logOut, cfg.Telemetry.ServiceName, cfg.Telemetry.Environment, level)

	otelCfg := cfg.Telemetry.OTel()
	shutdown, err := dopeotel.Init(ctx, otelCfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	if otelCfg.Enabled() {
		logger.Info("telemetry configured",
			slog.String("endpoint", otelCfg.Endpoint),
			logging.MaskHeaders("headers", cfg.Telemetry.Headers))
	}

	manager, err := openManager(cfg.Storage)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}
	engineCfg, err := cfg.Settlement()
	if err != nil {
		manager.Close()
		_ = shutdown(ctx)
		return nil, err
	}
	engine, err := settlement.New(manager, engineCfg)
	if err != nil {
		manager.Close()
		_ = shutdown(ctx)
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		manager:  manager,
		engine:   engine,
		runID:    uuid.New(),
		shutdown: shutdown,
	}
	a.clock = uint64(time.Now().Unix())
	engine.SetNowFunc(func() uint64 { return a.clock })
	engine.SetLogger(logger.With(slog.String("component", "settlement")))
	engine.SetMetrics(metrics.Settlement())

	fanout := events.Fanout{observability.Events()}
	if cfg.EventLog.Enabled {
		db, err := eventlog.Open(cfg.EventLog.Driver, cfg.EventLog.DSN)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.sink = eventlog.NewSink(db, a.runID, logger)
		fanout = append(fanout, a.sink)
		logger.Info("event log enabled", slog.String("driver", cfg.EventLog.Driver), logging.MaskDSN("dsn", cfg.EventLog.DSN))
	}
	engine.SetEmitter(fanout)
	return a, nil
}

func openManager(cfg config.Storage) (*state.Manager, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "memory":
		return state.NewMemoryManager(), nil
	case "leveldb":
		db, err := storage.NewLevelDB(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open leveldb %s: %w", cfg.Path, err)
		}
		return state.NewManager(db), nil
	case "bolt":
		db, err := storage.NewBoltDB(cfg.Path, nil)
		if err != nil {
			return nil, fmt.Errorf("open bolt %s: %w", cfg.Path, err)
		}
		return state.NewManager(db), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

func (a *app) setClock(at uint64) {
	if at > 0 {
		a.clock = at
	}
}

// report prints pool totals, the persisted event tally and, when configured,
// dumps Prometheus metrics to a textfile.
func (a *app) report(ctx context.Context, out io.Writer) error {
	if sale, err := a.engine.Sale(); err == nil {
		fmt.Fprintf(out, "sale        raised=%s distributed=%s\n", sale.Raised, sale.Distributed)
	}
	if market, err := a.engine.Market(); err == nil {
		fmt.Fprintf(out, "lending     deposited=%s borrowed=%s\n", market.TotalDeposited, market.TotalBorrowed)
	}
	if a.sink != nil {
		if err := a.sink.Err(); err != nil {
			return fmt.Errorf("event log: %w", err)
		}
		counts, err := a.sink.CountByType(ctx)
		if err != nil {
			return err
		}
		total := int64(0)
		for _, n := range counts {
			total += n
		}
		fmt.Fprintf(out, "events      %d persisted across %d types\n", total, len(counts))
	}
	if path := strings.TrimSpace(a.cfg.Telemetry.MetricsFile); path != "" {
		if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func (a *app) Close(ctx context.Context) {
	if a.manager != nil {
		a.manager.Close()
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}
}
