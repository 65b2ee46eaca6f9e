package hw

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/aht20"
	"periph.io/x/host/v3"
)

// AHT20 is an I2C temperature and humidity sensor.
type AHT20 struct {
	bus i2c.BusCloser
	dev *aht20.Dev
}

// OpenAHT20 initializes the periph host drivers and binds the sensor on the
// named I2C bus ("" selects the first available bus).
func OpenAHT20(busName string) (*AHT20, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}
	dev, err := aht20.NewI2C(bus, nil)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("init aht20: %w", err)
	}
	return &AHT20{bus: bus, dev: dev}, nil
}

// Sense returns temperature in Celsius and relative humidity in percent.
func (a *AHT20) Sense() (float64, float64, error) {
	var e physic.Env
	if err := a.dev.Sense(&e); err != nil {
		return 0, 0, fmt.Errorf("aht20 sense: %w", err)
	}
	return envCelsius(e), envHumidity(e), nil
}

// Close halts the sensor and releases the bus.
func (a *AHT20) Close() error {
	a.dev.Halt()
	return a.bus.Close()
}

func envCelsius(e physic.Env) float64 {
	return float64(e.Temperature-physic.ZeroCelsius) / float64(physic.Kelvin)
}

func envHumidity(e physic.Env) float64 {
	return float64(e.Humidity) / float64(physic.PercentRH)
}
