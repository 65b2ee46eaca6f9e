// Package events provides the readiness bus shared by the control loops.
// Bits are named boolean conditions; any goroutine can set or clear them and
// any goroutine can block until a combination of bits is present.
package events

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Bits is a set of readiness conditions.
type Bits uint32

const (
	WiFi Bits = 1 << iota
	Network
	Time
	IoT
	NetworkError
	Temperature
	Humidity
	DissolvedSolids
	Acidity
	PumpAcidUp
	PumpAcidDown
	PumpSolids
	PumpMain
	WaterLevel
	Valve
	Cycle
	// Band is signalled when any target band changes. It is separate from the
	// reading bits so a band write never looks like a fresh measurement.
	Band
)

var bitNames = []struct {
	bit  Bits
	name string
}{
	{WiFi, "wifi"},
	{Network, "network"},
	{Time, "time"},
	{IoT, "iot"},
	{NetworkError, "network-error"},
	{Temperature, "temperature-updated"},
	{Humidity, "humidity-updated"},
	{DissolvedSolids, "dissolved-solids-updated"},
	{Acidity, "acidity-updated"},
	{PumpAcidUp, "pump-acid-up"},
	{PumpAcidDown, "pump-acid-down"},
	{PumpSolids, "pump-solids"},
	{PumpMain, "pump-main"},
	{WaterLevel, "water-level-updated"},
	{Valve, "valve"},
	{Cycle, "cycle-ready"},
	{Band, "band-updated"},
}

// Has reports whether every bit of mask is set in b.
func (b Bits) Has(mask Bits) bool {
	return b&mask == mask
}

// Any reports whether at least one bit of mask is set in b.
func (b Bits) Any(mask Bits) bool {
	return b&mask != 0
}

// String lists the names of the set bits, e.g. "time|cycle-ready".
func (b Bits) String() string {
	if b == 0 {
		return "none"
	}
	var names []string
	for _, n := range bitNames {
		if b&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// Bus is a bitmask broadcast primitive with condition-variable semantics.
// The predicate is always evaluated under the lock before sleeping, so a bit
// set between a waiter's check and its sleep is never missed.
type Bus struct {
	mu   sync.Mutex
	cond *sync.Cond
	bits Bits
}

// NewBus returns a bus with no bits set.
func NewBus() *Bus {
	b := &Bus{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Signal sets the given bits and wakes every waiter.
func (b *Bus) Signal(bits Bits) Bits {
	b.mu.Lock()
	b.bits |= bits
	cur := b.bits
	b.mu.Unlock()
	if bits != 0 {
		b.cond.Broadcast()
	}
	return cur
}

// Clear clears the given bits.
func (b *Bus) Clear(bits Bits) Bits {
	b.mu.Lock()
	b.bits &^= bits
	cur := b.bits
	b.mu.Unlock()
	return cur
}

// Set sets the bits when on is true and clears them otherwise.
func (b *Bus) Set(bits Bits, on bool) Bits {
	if on {
		return b.Signal(bits)
	}
	return b.Clear(bits)
}

// Bits returns the current bit set without blocking.
func (b *Bus) Bits() Bits {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bits
}

// Wait blocks until mask is satisfied (all bits when matchAll, otherwise any
// bit) or until timeout elapses. A timeout <= 0 waits indefinitely. It returns
// the bits observed at wake-up and whether the condition was met.
func (b *Bus) Wait(mask Bits, matchAll bool, timeout time.Duration) (Bits, bool) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return b.WaitContext(ctx, mask, matchAll)
}

// WaitContext is Wait bounded by ctx instead of a fixed timeout.
func (b *Bus) WaitContext(ctx context.Context, mask Bits, matchAll bool) (Bits, bool) {
	// Wake the waiter when ctx ends; taking the lock orders the broadcast
	// after the waiter has either checked ctx or parked in cond.Wait.
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.cond.Broadcast()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if satisfied(b.bits, mask, matchAll) {
			return b.bits, true
		}
		if ctx.Err() != nil {
			return b.bits, false
		}
		b.cond.Wait()
	}
}

func satisfied(bits, mask Bits, matchAll bool) bool {
	if matchAll {
		return bits.Has(mask)
	}
	return bits.Any(mask)
}
