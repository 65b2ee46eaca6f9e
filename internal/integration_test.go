package internal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sweeney/hydroponics/internal/actuator"
	"github.com/sweeney/hydroponics/internal/config"
	"github.com/sweeney/hydroponics/internal/control"
	"github.com/sweeney/hydroponics/internal/cycle"
	"github.com/sweeney/hydroponics/internal/env"
	"github.com/sweeney/hydroponics/internal/events"
	"github.com/sweeney/hydroponics/internal/hw"
	"github.com/sweeney/hydroponics/internal/metrics"
	"github.com/sweeney/hydroponics/internal/mqtt"
	"github.com/sweeney/hydroponics/internal/store"
)

const voltsPerCount = 4.096 / 32768

// TestIntegrationFullFlow drives the loops with fakes from an empty
// environment through cycle start, dosing and cooldown.
func TestIntegrationFullFlow(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	timers := actuator.NewFakeTimers(now)

	bus := events.NewBus()
	acidityBand, _ := env.NewBand(5.5, 6.5)
	levelBand, _ := env.NewBand(20, 24)
	e, err := env.New(bus, env.Defaults{AcidityBand: acidityBand, WaterLevelBand: levelBand})
	if err != nil {
		t.Fatal(err)
	}

	db, err := store.Open(filepath.Join(t.TempDir(), "state.db"), 50)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	pub := mqtt.NewFakePublisher()
	m := metrics.New(e)
	journal := store.NewJournalWriter(db, 16, nil)
	defer journal.Close()
	deps := actuator.Deps{Timers: timers, Publisher: pub, Bus: bus, Journal: journal, Observer: m, Now: timers.Now}
	newGroup := func(name string, d, c time.Duration) *actuator.Debouncer {
		g, err := actuator.New(actuator.Config{Name: name, Duration: d, Cooldown: c}, deps)
		if err != nil {
			t.Fatal(err)
		}
		return g
	}
	acidPumps := newGroup("acidity", 5*time.Second, 60*time.Second)
	solidsPumps := newGroup("solids", 5*time.Second, 30*time.Second)
	valves := newGroup("valves", 10*time.Second, 60*time.Second)

	acidUp, acidDown := hw.NewFakeOutput("acid_up"), hw.NewFakeOutput("acid_down")
	solidsA, solidsB := hw.NewFakeOutput("solids_a"), hw.NewFakeOutput("solids_b")
	fill, drain, mainPump := hw.NewFakeOutput("fill"), hw.NewFakeOutput("drain"), hw.NewFakeOutput("main_pump")
	light := hw.NewFakeOutput("light")

	sampler := func(in hw.AnalogInput) *control.Sampler {
		s, err := control.NewSampler(in, 4, time.Millisecond)
		if err != nil {
			t.Fatal(err)
		}
		s.Sleep = func(time.Duration) {}
		return s
	}
	gate := control.Gate{Policy: config.GateInBand, RequireCycle: true}

	// Neutral probe (1555 mV) reads pH 7, above the 5.5-6.5 band.
	conv, err := control.NewAcidityConverter(1555, 2010, 1500, 3)
	if err != nil {
		t.Fatal(err)
	}
	acidity, err := control.NewAcidityLoop(control.AcidityDeps{
		Env: e, Sampler: sampler(hw.NewFakeAnalog(int(1.555 / voltsPerCount))), Converter: conv,
		Pumps: acidPumps, Up: acidUp, Down: acidDown, Gate: gate, VoltsPerCount: voltsPerCount,
	})
	if err != nil {
		t.Fatal(err)
	}

	// 0.5 V reads about 190 ppm, below the day-0 band.
	solids, err := control.NewSolidsLoop(control.SolidsDeps{
		Env: e, Sampler: sampler(hw.NewFakeAnalog(int(0.5 / voltsPerCount))),
		Converter: control.SolidsConverter{Cubic: [3]float64{133.42, -255.86, 857.39}, Factor: 0.5, Gain: 1},
		Pumps:     solidsPumps, A: solidsA, B: solidsB, Gate: gate, VoltsPerCount: voltsPerCount, Temperature: 25,
	})
	if err != nil {
		t.Fatal(err)
	}

	level, err := control.NewLevelLoop(control.LevelDeps{
		Env: e, Sensor: hw.NewFakeDistance(8), TankHeight: 30,
		Valves: valves, Fill: fill, Drain: drain, MainPump: mainPump,
	})
	if err != nil {
		t.Fatal(err)
	}

	sched, err := cycle.New(e, db, light, cycle.Config{
		Ramp:         []cycle.Step{{Day: 0, Min: 575, Max: 625}, {Day: 7, Min: 675, Max: 725}},
		LightOnHour:  6,
		LightOffHour: 18,
	}, timers.Now, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := sched.Init(); err != nil {
		t.Fatal(err)
	}

	// Level in band: distribution pump runs.
	if out, err := level.Step(); err != nil || out != control.InBand {
		t.Fatalf("level step: got %v, %v", out, err)
	}
	if !mainPump.On() {
		t.Error("main pump should run with the level in band")
	}

	// No cycle yet: acidity is measured but not dosed.
	if out, _ := acidity.Step(); out != control.Deferred {
		t.Errorf("acidity before cycle: got %v, want deferred", out)
	}
	if got := len(pub.States()); got != 0 {
		t.Errorf("no dosing expected before cycle start, got %d labels", got)
	}

	start, err := sched.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if stored, ok, _ := db.GetInt64(cycle.StartKey); !ok || stored != start {
		t.Errorf("persisted start: got %d, %v; want %d", stored, ok, start)
	}
	if b := e.Band(env.DissolvedSolids); !b.Set || b.Min != 575 {
		t.Errorf("solids band after start: got %+v", b)
	}
	if !light.On() {
		t.Error("light should be on at 10:00")
	}

	if out, err := acidity.Step(); err != nil || out != control.Lowered {
		t.Fatalf("acidity step: got %v, %v", out, err)
	}
	if out, err := solids.Step(); err != nil || out != control.Raised {
		t.Fatalf("solids step: got %v, %v", out, err)
	}
	if !acidDown.On() || acidUp.On() || !solidsA.On() || !solidsB.On() {
		t.Error("dosing outputs not driven as expected")
	}
	if !bus.Bits().Has(events.PumpAcidDown | events.PumpSolids) {
		t.Errorf("pump bits: got %v", bus.Bits())
	}

	labels := pub.States()
	if len(labels) != 2 || labels[0] != control.LabelAcidDown || labels[1] != control.LabelSolids {
		t.Errorf("published labels: got %v", labels)
	}

	// Re-triggering during the active window is dropped.
	if out, _ := acidity.Step(); out != control.Dropped {
		t.Errorf("second acidity step: got %v, want dropped", out)
	}

	timers.Advance(5 * time.Second)
	if acidDown.On() || solidsA.On() || solidsB.On() {
		t.Error("outputs should be off after the dose duration")
	}
	if bus.Bits().Any(events.PumpAcidDown | events.PumpSolids) {
		t.Errorf("pump bits should clear: got %v", bus.Bits())
	}
	if acidPumps.Phase() != actuator.Cooldown {
		t.Errorf("acidity phase: got %v, want COOLDOWN", acidPumps.Phase())
	}

	timers.Advance(60 * time.Second)
	if acidPumps.Phase() != actuator.Idle || solidsPumps.Phase() != actuator.Idle {
		t.Errorf("phases after cooldown: %v %v", acidPumps.Phase(), solidsPumps.Phase())
	}

	journal.Flush()
	entries, err := db.Journal(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Label != control.LabelSolids || entries[1].Group != "acidity" {
		t.Errorf("journal: got %+v", entries)
	}

	n, err := testutil.GatherAndCount(m.Registry(), "hydroponics_actuations_total")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("actuation series: got %d, want 2", n)
	}
}

// TestIntegrationRestartRecoversCycle reopens the store the way a reboot
// would and checks the band is rebuilt from the persisted start.
func TestIntegrationRestartRecoversCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	db, err := store.Open(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.SetInt64(cycle.StartKey, start.Unix()); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = store.Open(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	e, _ := env.New(events.NewBus(), env.Defaults{})
	now := func() time.Time { return start.Add(15*24*time.Hour + time.Hour) }
	sched, err := cycle.New(e, db, hw.NewFakeOutput("light"), cycle.Config{
		Ramp:         []cycle.Step{{Day: 0, Min: 575, Max: 625}, {Day: 14, Min: 775, Max: 825}},
		LightOnHour:  6,
		LightOffHour: 18,
	}, now, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := sched.Init(); err != nil {
		t.Fatal(err)
	}
	sched.Step()

	c := e.Cycle()
	if !c.Initialized || c.ElapsedDays != 15 {
		t.Errorf("cycle after restart: got %+v", c)
	}
	if b := e.Band(env.DissolvedSolids); b.Min != 775 || b.Max != 825 {
		t.Errorf("band after restart: got %+v", b)
	}
}
