package control

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/hydroponics/internal/hw"
)

// Sampler averages a fixed number of raw samples taken at a fixed delay.
type Sampler struct {
	in    hw.AnalogInput
	count int
	delay time.Duration

	// Sleep is replaced in tests.
	Sleep func(time.Duration)
}

// NewSampler creates a sampler over in.
func NewSampler(in hw.AnalogInput, count int, delay time.Duration) (*Sampler, error) {
	if in == nil {
		return nil, errors.New("control: nil analog input")
	}
	if count < 1 {
		return nil, fmt.Errorf("control: sample count %d", count)
	}
	return &Sampler{in: in, count: count, delay: delay, Sleep: time.Sleep}, nil
}

// Average returns the mean of count raw samples. Any failed read fails the
// whole average.
func (s *Sampler) Average() (float64, error) {
	var sum float64
	for i := 0; i < s.count; i++ {
		if i > 0 && s.delay > 0 {
			s.Sleep(s.delay)
		}
		v, err := s.in.Read()
		if err != nil {
			return 0, fmt.Errorf("sample %d/%d: %w", i+1, s.count, err)
		}
		sum += float64(v)
	}
	return sum / float64(s.count), nil
}
