// Package engine provides the tick-based simulation loop and the
// simulation aggregate it drives.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// TickSchedule defines when each layer runs relative to the tick counter.
const (
	TicksPerSecond = 20
	TicksPerHour   = 1000  // one in-world hour
	TicksPerDay    = 24000 // one in-world day
)

// Engine drives the simulation forward.
type Engine struct {
	Tick     uint64        // Current tick counter (monotonic, never resets)
	Interval time.Duration // Base tick interval at speed 1 (default 50ms)

	mu      sync.Mutex
	speed   float64 // 1.0 = real-time, 0 = paused
	running atomic.Bool

	// Callbacks for each tick layer, populated during setup.
	OnTick   func(tick uint64) // Every tick
	OnSecond func(tick uint64) // Every 20 ticks
	OnHour   func(tick uint64) // Every 1000 ticks
	OnDay    func(tick uint64) // Every 24000 ticks
}

// NewEngine creates an engine with default settings.
func NewEngine() *Engine {
	return &Engine{
		Interval: time.Second / TicksPerSecond,
		speed:    1.0,
	}
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier. Zero or less pauses the loop.
func (e *Engine) SetSpeed(speed float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.speed = speed
}

// Running reports whether Run is active.
func (e *Engine) Running() bool { return e.running.Load() }

// Run starts the simulation loop. Blocks until Stop() is called.
func (e *Engine) Run() {
	e.running.Store(true)
	slog.Info("simulation engine started", "tick", e.Tick, "speed", e.Speed())

	for e.running.Load() {
		speed := e.Speed()
		if speed <= 0 {
			// Paused: sleep briefly and check again.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()

		e.Step()

		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("simulation engine stopped", "tick", e.Tick)
}

// RunFor advances n ticks as fast as possible, without pacing.
func (e *Engine) RunFor(n uint64) {
	for range n {
		e.Step()
	}
}

// Stop halts the simulation loop.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// Step advances the simulation by one tick.
func (e *Engine) Step() {
	e.Tick++

	// Every tick: unit updates.
	if e.OnTick != nil {
		e.OnTick(e.Tick)
	}

	// Every second: observer sync.
	if e.Tick%TicksPerSecond == 0 && e.OnSecond != nil {
		e.OnSecond(e.Tick)
	}

	// Every hour: telemetry.
	if e.Tick%TicksPerHour == 0 && e.OnHour != nil {
		e.OnHour(e.Tick)
	}

	// Every day: report and auto-save.
	if e.Tick%TicksPerDay == 0 && e.OnDay != nil {
		e.OnDay(e.Tick)
	}
}

// SimTime returns a human-readable in-world time from a tick number.
// Day 1 starts at 06:00, as tick 0 is sunrise.
func SimTime(tick uint64) string {
	day := tick/TicksPerDay + 1
	inDay := (tick%TicksPerDay + 6*TicksPerHour) % TicksPerDay
	hours := inDay / TicksPerHour
	minutes := inDay % TicksPerHour * 60 / TicksPerHour
	return fmt.Sprintf("Day %d, %d:%02d", day, hours, minutes)
}
