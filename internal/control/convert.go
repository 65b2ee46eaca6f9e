package control

import (
	"errors"
	"math"
)

// Neutral and acid reference points of the two-point acidity calibration.
const (
	NeutralPH = 7.0
	AcidPH    = 4.0
)

// AcidityConverter maps a probe voltage to pH with
// value = slope*(mV-ref)/scale + intercept.
type AcidityConverter struct {
	Slope     float64
	Intercept float64
	Reference float64
	Scale     float64
}

// NewAcidityConverter fits slope and intercept so that neutralMV reads
// exactly pH 7 and acidMV reads exactly pH 4.
func NewAcidityConverter(neutralMV, acidMV, referenceMV, scale float64) (AcidityConverter, error) {
	if scale == 0 {
		return AcidityConverter{}, errors.New("control: zero acidity scale")
	}
	xn := (neutralMV - referenceMV) / scale
	xa := (acidMV - referenceMV) / scale
	if xn == xa {
		return AcidityConverter{}, errors.New("control: acidity calibration points coincide")
	}
	slope := (NeutralPH - AcidPH) / (xn - xa)
	return AcidityConverter{
		Slope:     slope,
		Intercept: NeutralPH - slope*xn,
		Reference: referenceMV,
		Scale:     scale,
	}, nil
}

// Convert returns the pH for a probe voltage in millivolts.
func (c AcidityConverter) Convert(millivolts float64) float64 {
	return c.Slope*(millivolts-c.Reference)/c.Scale + c.Intercept
}

// ReferenceTemperature is the temperature the solids calibration was taken at.
const ReferenceTemperature = 25.0

// TemperatureCoefficient is the standard conductivity compensation per °C.
const TemperatureCoefficient = 0.02

// SolidsConverter maps a conductivity probe voltage to ppm.
type SolidsConverter struct {
	// Cubic holds the v³, v² and v coefficients.
	Cubic  [3]float64
	Factor float64
	Gain   float64
}

// Convert compensates volts for temperatureC and applies the calibration
// cubic. Negative results clamp to zero.
func (c SolidsConverter) Convert(volts, temperatureC float64) float64 {
	coefficient := 1.0 + TemperatureCoefficient*(temperatureC-ReferenceTemperature)
	if coefficient <= 0 {
		coefficient = math.SmallestNonzeroFloat64
	}
	v := volts * c.Gain / coefficient
	ppm := (c.Cubic[0]*v*v*v + c.Cubic[1]*v*v + c.Cubic[2]*v) * c.Factor
	if ppm < 0 {
		return 0
	}
	return ppm
}
