//go:build linux

package hw

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/reef-pi/rpi/i2c"
)

// ADS1115 registers and config bits.
const (
	regConversion = 0x00
	regConfig     = 0x01

	configOsSingle    uint16 = 0x8000
	configModeSingle  uint16 = 0x0100
	configDataRate860 uint16 = 0x00E0
	configCompQueue   uint16 = 0x0003
	configGainOne     uint16 = 0x0200 // +/- 4.096V
	configMuxSingle0  uint16 = 0x4000

	convTimeout  = 50 * time.Millisecond
	convPollWait = 200 * time.Microsecond
)

// ADS1115FullScaleVolts is the full-scale input range at the gain used here.
const ADS1115FullScaleVolts = 4.096

// ADS1115 is a 4-channel 16-bit I2C ADC. Conversions on different channels
// share the device, so they are serialized.
type ADS1115 struct {
	bus  i2c.Bus
	addr byte
	mu   sync.Mutex
}

// OpenADS1115 opens the I2C bus and binds the ADC at addr.
func OpenADS1115(addr byte) (*ADS1115, error) {
	bus, err := i2c.New()
	if err != nil {
		return nil, fmt.Errorf("open i2c bus: %w", err)
	}
	return &ADS1115{bus: bus, addr: addr}, nil
}

// Channel returns single-ended input AINch.
func (a *ADS1115) Channel(ch int) (*ADCChannel, error) {
	if ch < 0 || ch > 3 {
		return nil, fmt.Errorf("ads1115: invalid channel %d", ch)
	}
	mux := configMuxSingle0 + uint16(ch)<<12
	return &ADCChannel{adc: a, ch: ch, mux: mux}, nil
}

// Close releases the I2C bus.
func (a *ADS1115) Close() error {
	return a.bus.Close()
}

func (a *ADS1115) convert(mux uint16) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	config := configOsSingle | configModeSingle | configCompQueue | mux | configGainOne | configDataRate860
	buf := []byte{byte(config >> 8), byte(config)}
	if err := a.bus.WriteToReg(a.addr, regConfig, buf); err != nil {
		return 0, fmt.Errorf("ads1115: write config: %w", err)
	}

	deadline := time.Now().Add(convTimeout)
	cfg := make([]byte, 2)
	for {
		if err := a.bus.ReadFromReg(a.addr, regConfig, cfg); err != nil {
			return 0, fmt.Errorf("ads1115: read config: %w", err)
		}
		if binary.BigEndian.Uint16(cfg)&configOsSingle != 0 {
			break
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("ads1115: conversion timeout")
		}
		time.Sleep(convPollWait)
	}

	b := make([]byte, 2)
	if err := a.bus.ReadFromReg(a.addr, regConversion, b); err != nil {
		return 0, fmt.Errorf("ads1115: read conversion: %w", err)
	}
	raw := int(int16(binary.BigEndian.Uint16(b)))
	// Single-ended inputs cannot go below ground.
	if raw < 0 {
		raw = 0
	}
	return raw, nil
}

// ADCChannel is one single-ended ADS1115 input.
type ADCChannel struct {
	adc *ADS1115
	ch  int
	mux uint16
}

// Read performs one single-shot conversion.
func (c *ADCChannel) Read() (int, error) {
	return c.adc.convert(c.mux)
}
