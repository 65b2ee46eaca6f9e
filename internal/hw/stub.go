//go:build !linux

package hw

import "errors"

var errUnsupported = errors.New("hw: not supported on this platform (requires Linux)")

// ErrEchoTimeout is returned when the ultrasonic echo never arrives.
var ErrEchoTimeout = errors.New("ultrasonic: echo timeout")

// ErrOutOfRange is returned when the measured distance exceeds the sensor range.
var ErrOutOfRange = errors.New("ultrasonic: distance out of range")

// ADS1115FullScaleVolts is the full-scale input range at the gain used here.
const ADS1115FullScaleVolts = 4.096

// Chip is not available on non-Linux platforms.
type Chip struct{}

// OpenChip returns an error on non-Linux platforms.
func OpenChip(name string) (*Chip, error) {
	return nil, errUnsupported
}

// Output is not implemented on non-Linux platforms.
func (c *Chip) Output(pin int, name string) (*LineOutput, error) {
	return nil, errUnsupported
}

// Ultrasonic is not implemented on non-Linux platforms.
func (c *Chip) Ultrasonic(triggerPin, echoPin int, maxDistance float64) (*Ultrasonic, error) {
	return nil, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (c *Chip) Close() error {
	return nil
}

// LineOutput is not available on non-Linux platforms.
type LineOutput struct{ name string }

// Write is not implemented on non-Linux platforms.
func (o *LineOutput) Write(on bool) error { return errUnsupported }

// Name returns the output's label.
func (o *LineOutput) Name() string { return o.name }

// Ultrasonic is not available on non-Linux platforms.
type Ultrasonic struct{}

// Measure is not implemented on non-Linux platforms.
func (u *Ultrasonic) Measure() (float64, error) { return 0, errUnsupported }

// ADS1115 is not available on non-Linux platforms.
type ADS1115 struct{}

// OpenADS1115 returns an error on non-Linux platforms.
func OpenADS1115(addr byte) (*ADS1115, error) {
	return nil, errUnsupported
}

// Channel is not implemented on non-Linux platforms.
func (a *ADS1115) Channel(ch int) (*ADCChannel, error) { return nil, errUnsupported }

// Close is not implemented on non-Linux platforms.
func (a *ADS1115) Close() error { return nil }

// ADCChannel is not available on non-Linux platforms.
type ADCChannel struct{}

// Read is not implemented on non-Linux platforms.
func (c *ADCChannel) Read() (int, error) { return 0, errUnsupported }
