// Command hydroponics runs the closed-loop nutrient, acidity and water-level
// controller and publishes its state to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/hydroponics/internal/actuator"
	"github.com/sweeney/hydroponics/internal/config"
	"github.com/sweeney/hydroponics/internal/control"
	"github.com/sweeney/hydroponics/internal/cycle"
	"github.com/sweeney/hydroponics/internal/env"
	"github.com/sweeney/hydroponics/internal/events"
	"github.com/sweeney/hydroponics/internal/metrics"
	"github.com/sweeney/hydroponics/internal/mqtt"
	"github.com/sweeney/hydroponics/internal/status"
	"github.com/sweeney/hydroponics/internal/store"
	"github.com/sweeney/hydroponics/internal/web"
)

func main() {
	configPath := flag.String("config", "/etc/hydroponics.yaml", "YAML configuration file (missing file uses defaults)")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", `HTTP status address (overrides config, "off" disables)`)
	dbPath := flag.String("db", "", "State database path (overrides config)")
	printConfig := flag.Bool("print-config", false, "Print the effective configuration and exit")
	simulate := flag.Bool("simulate", false, "Run against simulated hardware")

	flag.Parse()

	cfg, err := loadConfig(*configPath, *broker, *httpAddr, *dbPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if *printConfig {
		out, err := cfg.Marshal()
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		os.Stdout.Write(out)
		return
	}

	if err := run(cfg, *simulate); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// loadConfig reads the file and applies flag overrides. Empty overrides are ignored.
func loadConfig(path, broker, httpAddr, dbPath string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if broker != "" {
		cfg.MQTT.Broker = broker
	}
	switch httpAddr {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = httpAddr
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	return cfg, cfg.Validate()
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

// groups are the three debounce instances.
type groups struct {
	acidity, solids, valves *actuator.Debouncer
}

func newGroups(cfg config.Config, deps actuator.Deps) (groups, error) {
	var g groups
	var err error
	if g.acidity, err = actuator.New(actuator.Config{Name: "acidity", Duration: cfg.Acidity.Pump.Duration, Cooldown: cfg.Acidity.Pump.Cooldown}, deps); err != nil {
		return g, err
	}
	if g.solids, err = actuator.New(actuator.Config{Name: "solids", Duration: cfg.Solids.Pump.Duration, Cooldown: cfg.Solids.Pump.Cooldown}, deps); err != nil {
		return g, err
	}
	if g.valves, err = actuator.New(actuator.Config{Name: "valves", Duration: cfg.Level.Valves.Duration, Cooldown: cfg.Level.Valves.Cooldown}, deps); err != nil {
		return g, err
	}
	return g, nil
}

// releaseAll switches every dosing output off.
func (g groups) releaseAll() {
	g.acidity.Release()
	g.solids.Release()
	g.valves.Release()
}

func run(cfg config.Config, simulate bool) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	startTime := time.Now()

	bus := events.NewBus()
	acidityBand, err := env.NewBand(cfg.Acidity.Target.Min, cfg.Acidity.Target.Max)
	if err != nil {
		return fmt.Errorf("acidity target: %w", err)
	}
	levelBand, err := env.NewBand(cfg.Level.Target.Min, cfg.Level.Target.Max)
	if err != nil {
		return fmt.Errorf("level target: %w", err)
	}
	e, err := env.New(bus, env.Defaults{
		AcidityBand:    acidityBand,
		WaterLevelBand: levelBand,
		AcidityOffset:  cfg.Acidity.Offset,
	})
	if err != nil {
		return fmt.Errorf("init environment: %w", err)
	}

	db, err := store.Open(cfg.Store.Path, cfg.Store.JournalEntries)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	// Dosing loops must not wait on bbolt's fsync.
	journal := store.NewJournalWriter(db, 64, logger)
	defer journal.Close()

	var r *rig
	if simulate {
		r = simulatedRig(cfg)
	} else if r, err = openRig(cfg, logger); err != nil {
		return fmt.Errorf("init hardware: %w", err)
	}
	defer r.Close()

	// A broker that cannot be reached yet is not fatal: paho keeps retrying
	// and messages are buffered until it connects.
	mq, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Prefix:   cfg.MQTT.Prefix,
		Buffer:   cfg.MQTT.Buffer,
		Logger:   logger,
		OnConnectionChange: func(connected bool) {
			e.SetFlag(events.IoT, connected)
		},
	})
	if mq == nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	if err != nil {
		logger.Warn("mqtt not connected, continuing", "broker", cfg.MQTT.Broker, "error", err)
	}
	defer mq.Close()

	m := metrics.New(e)
	g, err := newGroups(cfg, actuator.Deps{
		Timers:    actuator.RealTimers{},
		Publisher: mq,
		Bus:       bus,
		Journal:   journal,
		Observer:  m,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("init actuators: %w", err)
	}

	vpc := cfg.Hardware.VoltsPerCount()
	gate := control.Gate{Policy: cfg.Gate, RequireCycle: cfg.Acidity.RequireCycle}

	acidSampler, err := control.NewSampler(r.acidity, cfg.Acidity.Sampling.Count, cfg.Acidity.Sampling.Delay)
	if err != nil {
		return err
	}
	conv, err := control.NewAcidityConverter(cfg.Acidity.NeutralMillivolts, cfg.Acidity.AcidMillivolts, cfg.Acidity.ReferenceMillivolts, cfg.Acidity.Scale)
	if err != nil {
		return err
	}
	acidity, err := control.NewAcidityLoop(control.AcidityDeps{
		Env: e, Sampler: acidSampler, Converter: conv, Pumps: g.acidity,
		Up: r.acidUp, Down: r.acidDown, Gate: gate, Logger: logger, VoltsPerCount: vpc,
	})
	if err != nil {
		return err
	}
	acidity.Observer = m

	solidsSampler, err := control.NewSampler(r.solids, cfg.Solids.Sampling.Count, cfg.Solids.Sampling.Delay)
	if err != nil {
		return err
	}
	solids, err := control.NewSolidsLoop(control.SolidsDeps{
		Env: e, Sampler: solidsSampler, Pumps: g.solids, A: r.solidsA, B: r.solidsB,
		Converter:     control.SolidsConverter{Cubic: cfg.Solids.Cubic, Factor: cfg.Solids.Factor, Gain: cfg.Solids.Gain},
		Gate:          gate,
		Logger:        logger,
		VoltsPerCount: vpc,
		Temperature:   cfg.Solids.Temperature,
		UseMeasured:   cfg.Solids.UseMeasuredTemperature,
	})
	if err != nil {
		return err
	}
	solids.Observer = m

	level, err := control.NewLevelLoop(control.LevelDeps{
		Env: e, Sensor: r.distance, TankHeight: cfg.Level.TankHeight, Valves: g.valves,
		Fill: r.fill, Drain: r.drain, MainPump: r.mainPump, Logger: logger,
	})
	if err != nil {
		return err
	}
	level.Observer = m

	ramp := make([]cycle.Step, len(cfg.Cycle.Ramp))
	for i, s := range cfg.Cycle.Ramp {
		ramp[i] = cycle.Step{Day: s.Day, Min: s.Min, Max: s.Max}
	}
	sched, err := cycle.New(e, db, r.light, cycle.Config{
		Ramp:         ramp,
		LightOnHour:  cfg.Cycle.LightOnHour,
		LightOffHour: cfg.Cycle.LightOffHour,
	}, time.Now, logger)
	if err != nil {
		return err
	}
	if err := sched.Init(); err != nil {
		return fmt.Errorf("recover cycle: %w", err)
	}
	defer sched.Off()

	tracker := status.NewTracker(startTime, status.Config{
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
		Gate:        cfg.Gate,
		TelemetryMs: cfg.MQTT.Telemetry.Milliseconds(),
		HeartbeatMs: cfg.MQTT.Heartbeat.Milliseconds(),
		AcidityMs:   cfg.Acidity.Period.Milliseconds(),
		SolidsMs:    cfg.Solids.Period.Milliseconds(),
		LevelMs:     cfg.Level.Period.Milliseconds(),
		Simulated:   simulate,
	}, e, g.acidity, g.solids, g.valves)
	applyNetwork(e, tracker, readNetworkInfo())

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, web.Deps{
			Tracker: tracker,
			Metrics: m.Handler(),
			Cycle:   sched,
			Offset:  e,
			Journal: db,
			Logger:  logger,
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", "addr", cfg.HTTP.Addr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	grp, ctx := errgroup.WithContext(ctx)

	acidTick := time.NewTicker(cfg.Acidity.Period)
	defer acidTick.Stop()
	solidsTick := time.NewTicker(cfg.Solids.Period)
	defer solidsTick.Stop()
	levelTick := time.NewTicker(cfg.Level.Period)
	defer levelTick.Stop()
	cycleTick, err := cycle.NewCronTicker(cycle.EverySpec(cfg.Cycle.Period))
	if err != nil {
		return err
	}
	defer cycleTick.Stop()

	grp.Go(func() error { return acidity.Run(ctx, acidTick.C) })
	grp.Go(func() error { return solids.Run(ctx, solidsTick.C) })
	grp.Go(func() error { return level.Run(ctx, levelTick.C) })
	grp.Go(func() error { return sched.Run(ctx, cycleTick.C()) })
	if cfg.Climate.Enabled && r.climate != nil {
		climate, err := control.NewClimateLoop(e, r.climate, logger)
		if err != nil {
			return err
		}
		climate.Observer = m
		climateTick := time.NewTicker(cfg.Climate.Period)
		defer climateTick.Stop()
		grp.Go(func() error { return climate.Run(ctx, climateTick.C) })
	}

	logger.Info("started",
		"broker", cfg.MQTT.Broker,
		"gate", cfg.Gate,
		"simulate", simulate,
		"acidity_period", cfg.Acidity.Period,
		"solids_period", cfg.Solids.Period,
		"level_period", cfg.Level.Period,
	)

	var telemetryC, heartbeatC <-chan time.Time
	if cfg.MQTT.Telemetry > 0 {
		t := time.NewTicker(cfg.MQTT.Telemetry)
		defer t.Stop()
		telemetryC = t.C
	}
	if cfg.MQTT.Heartbeat > 0 {
		t := time.NewTicker(cfg.MQTT.Heartbeat)
		defer t.Stop()
		heartbeatC = t.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	loopErr := runLoop(ctx, loopDeps{
		publisher:     mq,
		conn:          mq,
		tracker:       tracker,
		env:           e,
		now:           time.Now,
		minSyncedYear: cfg.Cycle.MinSyncedYear,
		log:           logger,
	}, telemetryC, heartbeatC, sigCh)

	cancel()
	waitErr := grp.Wait()
	g.releaseAll()
	if waitErr != nil {
		return waitErr
	}
	return loopErr
}
