package events

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSignalAndClear(t *testing.T) {
	b := NewBus()
	if b.Bits() != 0 {
		t.Fatalf("new bus: got %v, want none", b.Bits())
	}

	b.Signal(Acidity | WaterLevel)
	if !b.Bits().Has(Acidity | WaterLevel) {
		t.Errorf("after signal: got %v", b.Bits())
	}

	b.Clear(Acidity)
	if b.Bits().Any(Acidity) {
		t.Error("acidity should be cleared")
	}
	if !b.Bits().Has(WaterLevel) {
		t.Error("water level should remain set")
	}
}

func TestSet(t *testing.T) {
	b := NewBus()
	b.Set(IoT, true)
	if !b.Bits().Has(IoT) {
		t.Error("expected IoT set")
	}
	b.Set(IoT, false)
	if b.Bits().Has(IoT) {
		t.Error("expected IoT cleared")
	}
}

func TestWaitAlreadySatisfied(t *testing.T) {
	b := NewBus()
	b.Signal(Time | Cycle)

	bits, ok := b.Wait(Time|Cycle, true, 0)
	if !ok {
		t.Fatal("expected wait to succeed immediately")
	}
	if !bits.Has(Time | Cycle) {
		t.Errorf("bits: got %v", bits)
	}
}

func TestWaitAllBlocksUntilEveryBit(t *testing.T) {
	b := NewBus()
	done := make(chan Bits, 1)
	go func() {
		bits, _ := b.Wait(Time|Cycle, true, 0)
		done <- bits
	}()

	b.Signal(Time)
	select {
	case <-done:
		t.Fatal("wait-all returned with only one bit set")
	case <-time.After(50 * time.Millisecond):
	}

	b.Signal(Cycle)
	select {
	case bits := <-done:
		if !bits.Has(Time | Cycle) {
			t.Errorf("bits: got %v", bits)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never woke up")
	}
}

func TestWaitAny(t *testing.T) {
	b := NewBus()
	done := make(chan bool, 1)
	go func() {
		_, ok := b.Wait(Acidity|DissolvedSolids, false, 0)
		done <- ok
	}()

	b.Signal(DissolvedSolids)
	select {
	case ok := <-done:
		if !ok {
			t.Error("expected wait-any to succeed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never woke up")
	}
}

func TestWaitTimeout(t *testing.T) {
	b := NewBus()
	start := time.Now()
	bits, ok := b.Wait(WaterLevel, true, 30*time.Millisecond)
	if ok {
		t.Fatal("expected timeout")
	}
	if bits != 0 {
		t.Errorf("bits: got %v, want none", bits)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("returned after %v, before the timeout", elapsed)
	}
}

func TestWaitContextCancel(t *testing.T) {
	b := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		_, ok := b.WaitContext(ctx, Cycle, true)
		done <- ok
	}()

	cancel()
	select {
	case ok := <-done:
		if ok {
			t.Error("expected cancelled wait to report false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not wake the waiter")
	}
}

// Many waiters racing with a single signal must all observe it.
func TestNoMissedWakeups(t *testing.T) {
	for round := 0; round < 50; round++ {
		b := NewBus()
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, ok := b.Wait(Cycle, true, 5*time.Second); !ok {
					t.Error("waiter missed the signal")
				}
			}()
		}
		b.Signal(Cycle)
		wg.Wait()
	}
}

func TestBitsString(t *testing.T) {
	if got := Bits(0).String(); got != "none" {
		t.Errorf("got %q, want none", got)
	}
	if got := (Time | Cycle).String(); got != "time|cycle-ready" {
		t.Errorf("got %q, want time|cycle-ready", got)
	}
}
