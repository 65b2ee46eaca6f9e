// Package hw provides hardware I/O with abstraction for testing.
// The real implementations use the Linux GPIO character device and I2C.
// The fake implementations allow testing without hardware.
package hw

// AnalogInput reads raw samples from one ADC channel.
type AnalogInput interface {
	// Read returns a single raw conversion result in ADC counts.
	Read() (int, error)
}

// Output drives one digital output line (pump, valve, light).
type Output interface {
	// Write drives the line on (true) or off (false).
	Write(on bool) error

	// Name identifies the output in logs.
	Name() string
}

// DistanceSensor measures the distance from the sensor to the water surface.
type DistanceSensor interface {
	// Measure returns the distance in centimetres.
	Measure() (float64, error)
}

// ClimateSensor reads ambient conditions.
type ClimateSensor interface {
	// Sense returns temperature in degrees Celsius and relative humidity in percent.
	Sense() (temperature, humidity float64, err error)
}

// Default pin assignments (BCM numbering).
const (
	DefaultPinAcidUp    = 18
	DefaultPinAcidDown  = 19
	DefaultPinSolidsA   = 20
	DefaultPinSolidsB   = 26
	DefaultPinFill      = 5
	DefaultPinDrain     = 6
	DefaultPinMainPump  = 13
	DefaultPinLight     = 21
	DefaultPinTrigger   = 17
	DefaultPinEcho      = 16
	DefaultADCAddress   = 0x48
	DefaultChipName     = "gpiochip0"
	DefaultI2CBus       = ""
	DefaultMaxDistance  = 500.0
	speedOfSoundCmPerUs = 0.0343
)

// EchoToDistance converts an ultrasonic echo pulse width in microseconds to
// a one-way distance in centimetres.
func EchoToDistance(pulseMicros float64) float64 {
	return pulseMicros * speedOfSoundCmPerUs / 2
}
