// Package config holds every tunable of the controller in one validated
// structure, loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/sweeney/hydroponics/internal/hw"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Gate policies for dosing loops.
const (
	// GateInBand requires the last water level to lie inside its band.
	GateInBand = "in_band"
	// GateMeasured only requires the water level to have been measured once.
	GateMeasured = "measured"
)

// Config is the root configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`
	Gate     string `yaml:"gate"`

	MQTT     MQTT     `yaml:"mqtt"`
	HTTP     HTTP     `yaml:"http"`
	Store    Store    `yaml:"store"`
	Hardware Hardware `yaml:"hardware"`

	Acidity Acidity `yaml:"acidity"`
	Solids  Solids  `yaml:"solids"`
	Level   Level   `yaml:"level"`
	Climate Climate `yaml:"climate"`
	Cycle   Cycle   `yaml:"cycle"`
}

// MQTT configures the telemetry publisher.
type MQTT struct {
	Broker    string        `yaml:"broker"`
	ClientID  string        `yaml:"client_id"`
	Prefix    string        `yaml:"prefix"`
	Telemetry time.Duration `yaml:"telemetry"`
	Heartbeat time.Duration `yaml:"heartbeat"`
	Buffer    int           `yaml:"buffer"`
}

// HTTP configures the status server. An empty address disables it.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Store configures the bbolt database.
type Store struct {
	Path           string `yaml:"path"`
	JournalEntries int    `yaml:"journal_entries"`
}

// Pins are BCM line offsets on the GPIO chip.
type Pins struct {
	AcidUp   int `yaml:"acid_up"`
	AcidDown int `yaml:"acid_down"`
	SolidsA  int `yaml:"solids_a"`
	SolidsB  int `yaml:"solids_b"`
	Fill     int `yaml:"fill"`
	Drain    int `yaml:"drain"`
	MainPump int `yaml:"main_pump"`
	Light    int `yaml:"light"`
	Trigger  int `yaml:"trigger"`
	Echo     int `yaml:"echo"`
}

// Hardware describes the buses and converters.
type Hardware struct {
	Chip           string  `yaml:"gpio_chip"`
	ADCAddress     int     `yaml:"adc_address"`
	FullScaleVolts float64 `yaml:"full_scale_volts"`
	Resolution     int     `yaml:"resolution"`
	I2CBus         string  `yaml:"i2c_bus"`
	Pins           Pins    `yaml:"pins"`
}

// VoltsPerCount converts raw converter counts to volts.
func (h Hardware) VoltsPerCount() float64 {
	return h.FullScaleVolts / float64(h.Resolution)
}

// Sampling is the averaging step of every analog loop.
type Sampling struct {
	Count int           `yaml:"count"`
	Delay time.Duration `yaml:"delay"`
}

// Pump is one debounce group's timing.
type Pump struct {
	Duration time.Duration `yaml:"duration"`
	Cooldown time.Duration `yaml:"cooldown"`
}

// Band is an inclusive target range.
type Band struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Acidity configures the pH loop.
type Acidity struct {
	Channel  int           `yaml:"channel"`
	Period   time.Duration `yaml:"period"`
	Sampling Sampling      `yaml:"sampling"`
	Pump     Pump          `yaml:"pump"`
	Target   Band          `yaml:"target"`
	Offset   float64       `yaml:"offset"`

	NeutralMillivolts   float64 `yaml:"neutral_mv"`
	AcidMillivolts      float64 `yaml:"acid_mv"`
	ReferenceMillivolts float64 `yaml:"reference_mv"`
	Scale               float64 `yaml:"scale"`

	RequireCycle bool `yaml:"require_cycle"`
}

// Solids configures the dissolved-solids loop.
type Solids struct {
	Channel  int           `yaml:"channel"`
	Period   time.Duration `yaml:"period"`
	Sampling Sampling      `yaml:"sampling"`
	Pump     Pump          `yaml:"pump"`

	// Gain multiplies the measured voltage (divider compensation).
	Gain float64 `yaml:"gain"`
	// Cubic holds the v³, v², v coefficients of the calibration polynomial.
	Cubic  [3]float64 `yaml:"cubic"`
	Factor float64    `yaml:"factor"`

	Temperature            float64 `yaml:"temperature"`
	UseMeasuredTemperature bool    `yaml:"use_measured_temperature"`
}

// Level configures the water-level loop.
type Level struct {
	Period      time.Duration `yaml:"period"`
	TankHeight  float64       `yaml:"tank_height"`
	MaxDistance float64       `yaml:"max_distance"`
	Target      Band          `yaml:"target"`
	Valves      Pump          `yaml:"valves"`
}

// Climate configures the temperature/humidity loop.
type Climate struct {
	Enabled bool          `yaml:"enabled"`
	Period  time.Duration `yaml:"period"`
}

// RampStep applies from Day onwards until the next step.
type RampStep struct {
	Day int     `yaml:"day"`
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Cycle configures the growth-cycle scheduler and light schedule.
type Cycle struct {
	Period       time.Duration `yaml:"period"`
	Ramp         []RampStep    `yaml:"ramp"`
	LightOnHour  int           `yaml:"light_on_hour"`
	LightOffHour int           `yaml:"light_off_hour"`
	// MinSyncedYear is the earliest wall-clock year treated as synchronized.
	MinSyncedYear int `yaml:"min_synced_year"`
}

// Default returns the configuration the unit ships with.
func Default() Config {
	sampling := Sampling{Count: 32, Delay: 50 * time.Millisecond}
	return Config{
		LogLevel: "info",
		Gate:     GateInBand,
		MQTT: MQTT{
			Broker:    "tcp://192.168.1.200:1883",
			ClientID:  "hydroponics",
			Prefix:    "hydroponics",
			Telemetry: time.Minute,
			Heartbeat: 15 * time.Minute,
			Buffer:    1000,
		},
		HTTP:  HTTP{Addr: ":80"},
		Store: Store{Path: "/var/lib/hydroponics/state.db", JournalEntries: 100},
		Hardware: Hardware{
			Chip:           hw.DefaultChipName,
			ADCAddress:     hw.DefaultADCAddress,
			FullScaleVolts: 4.096,
			Resolution:     32768,
			I2CBus:         hw.DefaultI2CBus,
			Pins: Pins{
				AcidUp:   hw.DefaultPinAcidUp,
				AcidDown: hw.DefaultPinAcidDown,
				SolidsA:  hw.DefaultPinSolidsA,
				SolidsB:  hw.DefaultPinSolidsB,
				Fill:     hw.DefaultPinFill,
				Drain:    hw.DefaultPinDrain,
				MainPump: hw.DefaultPinMainPump,
				Light:    hw.DefaultPinLight,
				Trigger:  hw.DefaultPinTrigger,
				Echo:     hw.DefaultPinEcho,
			},
		},
		Acidity: Acidity{
			Channel:             0,
			Period:              2 * time.Second,
			Sampling:            sampling,
			Pump:                Pump{Duration: 5 * time.Second, Cooldown: 60 * time.Second},
			Target:              Band{Min: 5.5, Max: 6.5},
			NeutralMillivolts:   1555,
			AcidMillivolts:      2010,
			ReferenceMillivolts: 1500,
			Scale:               3,
			RequireCycle:        true,
		},
		Solids: Solids{
			Channel:     1,
			Period:      3 * time.Second,
			Sampling:    sampling,
			Pump:        Pump{Duration: 5 * time.Second, Cooldown: 30 * time.Second},
			Gain:        1,
			Cubic:       [3]float64{133.42, -255.86, 857.39},
			Factor:      0.5,
			Temperature: 25,
		},
		Level: Level{
			Period:      5 * time.Second,
			TankHeight:  30,
			MaxDistance: hw.DefaultMaxDistance,
			Target:      Band{Min: 20, Max: 24},
			Valves:      Pump{Duration: 10 * time.Second, Cooldown: 60 * time.Second},
		},
		Climate: Climate{Enabled: true, Period: 30 * time.Second},
		Cycle: Cycle{
			Period: 10 * time.Minute,
			Ramp: []RampStep{
				{Day: 0, Min: 575, Max: 625},
				{Day: 7, Min: 675, Max: 725},
				{Day: 14, Min: 775, Max: 825},
				{Day: 21, Min: 875, Max: 925},
			},
			LightOnHour:   6,
			LightOffHour:  18,
			MinSyncedYear: 2020,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, cfg.Validate()
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func checkBand(name string, b Band) error {
	if math.IsNaN(b.Min) || math.IsNaN(b.Max) || b.Min > b.Max {
		return invalid("%s band %v..%v", name, b.Min, b.Max)
	}
	return nil
}

func checkPump(name string, p Pump) error {
	if p.Duration <= 0 {
		return invalid("%s duration must be positive", name)
	}
	if p.Cooldown < 0 {
		return invalid("%s cooldown must not be negative", name)
	}
	return nil
}

func checkSampling(name string, s Sampling) error {
	if s.Count < 1 {
		return invalid("%s sample count must be at least 1", name)
	}
	if s.Delay < 0 {
		return invalid("%s sample delay must not be negative", name)
	}
	return nil
}

// Validate checks every field the control loops depend on.
func (c Config) Validate() error {
	switch c.Gate {
	case GateInBand, GateMeasured:
	default:
		return invalid("gate %q (want %s or %s)", c.Gate, GateInBand, GateMeasured)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log_level %q", c.LogLevel)
	}

	if c.Hardware.FullScaleVolts <= 0 || c.Hardware.Resolution <= 0 {
		return invalid("adc scale %v/%d", c.Hardware.FullScaleVolts, c.Hardware.Resolution)
	}
	if c.Hardware.ADCAddress < 0 || c.Hardware.ADCAddress > 0x7f {
		return invalid("adc_address %#x", c.Hardware.ADCAddress)
	}

	a := c.Acidity
	if a.Period <= 0 {
		return invalid("acidity period must be positive")
	}
	if err := checkSampling("acidity", a.Sampling); err != nil {
		return err
	}
	if err := checkPump("acidity pump", a.Pump); err != nil {
		return err
	}
	if err := checkBand("acidity", a.Target); err != nil {
		return err
	}
	if a.Scale == 0 {
		return invalid("acidity scale must not be zero")
	}
	if a.NeutralMillivolts == a.AcidMillivolts {
		return invalid("acidity calibration points coincide at %v mV", a.NeutralMillivolts)
	}

	s := c.Solids
	if s.Period <= 0 {
		return invalid("solids period must be positive")
	}
	if err := checkSampling("solids", s.Sampling); err != nil {
		return err
	}
	if err := checkPump("solids pump", s.Pump); err != nil {
		return err
	}
	if s.Gain <= 0 || s.Factor <= 0 {
		return invalid("solids gain/factor must be positive")
	}

	l := c.Level
	if l.Period <= 0 {
		return invalid("level period must be positive")
	}
	if l.TankHeight <= 0 {
		return invalid("tank_height must be positive")
	}
	if err := checkBand("level", l.Target); err != nil {
		return err
	}
	if err := checkPump("valves", l.Valves); err != nil {
		return err
	}

	if c.Climate.Enabled && c.Climate.Period <= 0 {
		return invalid("climate period must be positive")
	}

	cy := c.Cycle
	if cy.Period <= 0 {
		return invalid("cycle period must be positive")
	}
	if len(cy.Ramp) == 0 || cy.Ramp[0].Day != 0 {
		return invalid("ramp must start at day 0")
	}
	for i, step := range cy.Ramp {
		if err := checkBand(fmt.Sprintf("ramp day %d", step.Day), Band{Min: step.Min, Max: step.Max}); err != nil {
			return err
		}
		if i > 0 && step.Day <= cy.Ramp[i-1].Day {
			return invalid("ramp days must ascend (day %d after %d)", step.Day, cy.Ramp[i-1].Day)
		}
	}
	if cy.LightOnHour < 0 || cy.LightOffHour > 24 || cy.LightOnHour >= cy.LightOffHour {
		return invalid("light window %d..%d", cy.LightOnHour, cy.LightOffHour)
	}

	if c.MQTT.Buffer < 1 {
		return invalid("mqtt buffer must be at least 1")
	}
	if c.Store.JournalEntries < 1 {
		return invalid("journal_entries must be at least 1")
	}
	return nil
}
