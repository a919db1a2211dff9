package source

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/domain"
)

// Generator models a battery cycling between 20% and 95% SOC. Each step moves
// SOC by 0.5 to 2 points in the current direction, clamped to [10, 100].
type Generator struct {
	mu        sync.Mutex
	rnd       func() float64
	soc       float64
	direction float64
	cycles    int
}

// NewGenerator uses rnd for every random draw; nil means math/rand.
func NewGenerator(rnd func() float64) *Generator {
	if rnd == nil {
		rnd = rand.Float64
	}
	return &Generator{rnd: rnd, soc: 50, direction: 1}
}

func (g *Generator) Cycles() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cycles
}

func (g *Generator) Charging() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.direction > 0
}

func (g *Generator) step() float64 {
	if g.soc >= 95 {
		g.direction = -1
	} else if g.soc <= 20 {
		g.direction = 1
		g.cycles++
	}
	g.soc += g.direction * (0.5 + g.rnd()*1.5)
	g.soc = math.Max(10, math.Min(100, g.soc))
	return g.soc
}

func (g *Generator) between(lo, hi float64) domain.Number {
	return domain.Num(lo + g.rnd()*(hi-lo))
}

// Next advances the SOC model and returns a full reading stamped at ts.
func (g *Generator) Next(ts time.Time) domain.Reading {
	g.mu.Lock()
	defer g.mu.Unlock()

	soc := g.step()
	return domain.Reading{
		Timestamp: ts,

		BMSSOC:       domain.Num(soc),
		BMSSOH:       g.between(85, 100),
		BMSVoltage:   g.between(800, 1000),
		BMSCurrent:   g.between(-50, 50),
		BMSCellAveV:  g.between(3.2, 4.0),
		BMSCellAveT:  g.between(25, 45),
		BMSCellMaxV:  g.between(3.6, 3.8),
		BMSCellMinV:  g.between(3.0, 3.2),
		BMSCellVDiff: g.between(0, 50),
		BMSCellTDiff: g.between(0, 10),

		PCSApparentPower: g.between(-70, 70),
		PCSDCVoltage:     g.between(800, 1000),
		PCSDCCurrent:     g.between(-30, 30),
		PCSACCurrentA:    g.between(-20, 20),
		PCSACCurrentB:    g.between(-20, 20),
		PCSACCurrentC:    g.between(-20, 20),
		PCSACVoltageAB:   g.between(380, 420),
		PCSACVoltageBC:   g.between(380, 420),
		PCSACVoltageCA:   g.between(380, 420),
		PCSTempIGBT:      g.between(35, 65),
		PCSTempEnv:       g.between(15, 30),

		AuxOutsideTemp:         g.between(15, 30),
		AuxOutwaterTemp:        g.between(20, 30),
		AuxReturnWaterPressure: g.between(1.5, 3),
		AuxPowerApparent:       g.between(0.2, 0.8),

		EnvHumidity:    g.between(40, 70),
		EnvTemperature: g.between(15, 30),

		SafetySmoke: domain.FlagOf(g.rnd() > 0.95),
	}
}

// Describe formats the log line for a generated reading.
func Describe(r domain.Reading, charging bool) string {
	dir := "DISCHARGING"
	if charging {
		dir = "CHARGING"
	}
	return fmt.Sprintf("Mock data: SOC=%.1f%% V=%.1fV %s", r.BMSSOC.Or(0), r.BMSVoltage.Or(0), dir)
}

// Synthetic emits generated readings on a fixed interval. Every subscription
// gets its own Generator, so SOC always starts at 50.
type Synthetic struct {
	rnd func() float64
	now func() time.Time
}

func NewSynthetic(rnd func() float64) *Synthetic {
	return &Synthetic{rnd: rnd, now: time.Now}
}

func (s *Synthetic) Name() string { return "synthetic" }

func (s *Synthetic) Subscribe(ctx context.Context, deviceID string, opts Options, emit func(Event)) error {
	gen := NewGenerator(s.rnd)
	ticker := time.NewTicker(interval(opts))
	defer ticker.Stop()

	emit(Event{Kind: EventConnected})
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r := gen.Next(s.now())
			emit(Event{Kind: EventReading, Reading: r, Detail: Describe(r, gen.Charging())})
		}
	}
}
