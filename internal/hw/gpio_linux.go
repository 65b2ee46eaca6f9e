//go:build linux

package hw

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "hydroponics"

var (
	// ErrEchoTimeout is returned when the ultrasonic echo never arrives.
	ErrEchoTimeout = errors.New("ultrasonic: echo timeout")

	// ErrOutOfRange is returned when the measured distance exceeds the sensor range.
	ErrOutOfRange = errors.New("ultrasonic: distance out of range")
)

// Chip owns the GPIO lines requested from one Linux GPIO character device.
type Chip struct {
	chip *gpiocdev.Chip

	mu      sync.Mutex
	outputs []*gpiocdev.Line
	inputs  []*gpiocdev.Line
}

// OpenChip opens the named GPIO chip, e.g. "gpiochip0".
func OpenChip(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &Chip{chip: chip}, nil
}

// Output requests pin as an output driven low.
func (c *Chip) Output(pin int, name string) (*LineOutput, error) {
	line, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request %s pin %d: %w", name, pin, err)
	}
	c.mu.Lock()
	c.outputs = append(c.outputs, line)
	c.mu.Unlock()
	return &LineOutput{line: line, name: name}, nil
}

// Ultrasonic requests the trigger and echo lines of an HC-SR04 style sensor.
func (c *Chip) Ultrasonic(triggerPin, echoPin int, maxDistance float64) (*Ultrasonic, error) {
	trigger, err := c.chip.RequestLine(triggerPin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request trigger pin %d: %w", triggerPin, err)
	}
	u := &Ultrasonic{
		trigger:     trigger,
		maxDistance: maxDistance,
		edges:       make(chan gpiocdev.LineEvent, 8),
	}
	echo, err := c.chip.RequestLine(echoPin,
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(u.handleEdge))
	if err != nil {
		trigger.Close()
		return nil, fmt.Errorf("request echo pin %d: %w", echoPin, err)
	}
	u.echo = echo

	c.mu.Lock()
	c.outputs = append(c.outputs, trigger)
	c.inputs = append(c.inputs, echo)
	c.mu.Unlock()
	return u, nil
}

// Close drives every output low, returns the lines to inputs with pull-down
// (matching Pi boot defaults) and releases the chip.
func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, line := range c.outputs {
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive line %d low: %w", line.Offset(), err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line %d: %w", line.Offset(), err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", line.Offset(), err))
		}
	}
	for _, line := range c.inputs {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", line.Offset(), err))
		}
	}
	c.outputs, c.inputs = nil, nil
	if err := c.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// LineOutput is one GPIO output line.
type LineOutput struct {
	line *gpiocdev.Line
	name string
}

// Write drives the line high for on, low for off.
func (o *LineOutput) Write(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("write %s: %w", o.name, err)
	}
	return nil
}

// Name returns the output's label.
func (o *LineOutput) Name() string {
	return o.name
}

// Ultrasonic measures distance by timing the echo pulse of an HC-SR04.
// Edge timestamps come from the kernel, so scheduling jitter in this process
// does not skew the pulse width.
type Ultrasonic struct {
	trigger     *gpiocdev.Line
	echo        *gpiocdev.Line
	maxDistance float64
	edges       chan gpiocdev.LineEvent

	mu sync.Mutex
}

func (u *Ultrasonic) handleEdge(evt gpiocdev.LineEvent) {
	select {
	case u.edges <- evt:
	default:
	}
}

// Measure fires one ping and returns the distance in centimetres.
func (u *Ultrasonic) Measure() (float64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	// Discard edges left over from a previous timed-out ping.
	for len(u.edges) > 0 {
		<-u.edges
	}

	if err := u.trigger.SetValue(1); err != nil {
		return 0, fmt.Errorf("ultrasonic trigger: %w", err)
	}
	time.Sleep(10 * time.Microsecond)
	if err := u.trigger.SetValue(0); err != nil {
		return 0, fmt.Errorf("ultrasonic trigger: %w", err)
	}

	maxEcho := time.Duration(u.maxDistance*2/speedOfSoundCmPerUs) * time.Microsecond
	deadline := time.After(maxEcho + 20*time.Millisecond)

	var rise time.Duration
	risen := false
	for {
		select {
		case evt := <-u.edges:
			switch evt.Type {
			case gpiocdev.LineEventRisingEdge:
				rise = evt.Timestamp
				risen = true
			case gpiocdev.LineEventFallingEdge:
				if !risen {
					continue
				}
				width := evt.Timestamp - rise
				d := EchoToDistance(float64(width) / float64(time.Microsecond))
				if d > u.maxDistance {
					return 0, fmt.Errorf("%w: %.1f cm", ErrOutOfRange, d)
				}
				return d, nil
			}
		case <-deadline:
			return 0, ErrEchoTimeout
		}
	}
}
