// Package worldctx answers the environmental questions units ask about
// where they stand: sky access, weather and biome.
package worldctx

import (
	"math"
	"sync"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Pos is a block position.
type Pos struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	Z int `json:"z" yaml:"z"`
}

// Biome describes the climate at a column.
type Biome struct {
	Name        string  `json:"name"`
	Rainfall    float64 `json:"rainfall"`
	Temperature float64 `json:"temperature"`
}

// World is the read-only environment units consult.
type World interface {
	CanSeeSky(p Pos) bool
	IsRaining(tick uint64) bool
	Biome(p Pos) Biome
	CanPrecipitate(b Biome) bool
}

// NoiseWorld derives biomes from layered simplex noise and weather from a
// slowly drifting noise field over time. Sky access is open unless a
// position was explicitly covered.
type NoiseWorld struct {
	rainNoise    opensimplex.Noise
	tempNoise    opensimplex.Noise
	weatherNoise opensimplex.Noise
	rainChance   float64

	mu      sync.RWMutex
	covered map[Pos]bool
}

// NewNoiseWorld creates a world from a seed. rainChance in [0, 1] is the
// fraction of time it rains.
func NewNoiseWorld(seed int64, rainChance float64) *NoiseWorld {
	return &NoiseWorld{
		rainNoise:    opensimplex.NewNormalized(seed + 1),
		tempNoise:    opensimplex.NewNormalized(seed + 2),
		weatherNoise: opensimplex.NewNormalized(seed + 3),
		rainChance:   rainChance,
		covered:      make(map[Pos]bool),
	}
}

// Cover places a roof over the column at p.
func (w *NoiseWorld) Cover(p Pos) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.covered[Pos{X: p.X, Z: p.Z}] = true
}

// Uncover removes a roof placed by Cover.
func (w *NoiseWorld) Uncover(p Pos) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.covered, Pos{X: p.X, Z: p.Z})
}

func (w *NoiseWorld) CanSeeSky(p Pos) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return !w.covered[Pos{X: p.X, Z: p.Z}]
}

// IsRaining samples the weather field. Weather changes over a few
// thousand ticks, never from one tick to the next.
func (w *NoiseWorld) IsRaining(tick uint64) bool {
	v := w.weatherNoise.Eval2(float64(tick)/2400.0, 0.5)
	return v < w.rainChance
}

func (w *NoiseWorld) Biome(p Pos) Biome {
	x, z := float64(p.X), float64(p.Z)
	rain := octaveNoise(w.rainNoise, x, z, 3, 0.006, 0.5)
	temp := octaveNoise(w.tempNoise, x, z, 3, 0.005, 0.5)
	return Biome{Name: biomeName(rain, temp), Rainfall: rain, Temperature: temp}
}

// CanPrecipitate reports whether rain or snow ever falls in the biome.
// Dry biomes never see any.
func (w *NoiseWorld) CanPrecipitate(b Biome) bool {
	return b.Rainfall >= 0.2
}

func biomeName(rain, temp float64) string {
	switch {
	case rain < 0.2 && temp > 0.55:
		return "desert"
	case rain < 0.2:
		return "steppe"
	case temp < 0.25:
		return "tundra"
	case rain > 0.65 && temp > 0.6:
		return "jungle"
	case rain > 0.5:
		return "forest"
	}
	return "plains"
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0
	for range octaves {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return math.Max(0, math.Min(1, total/maxVal))
}

// Fixed is a World with constant answers, for tests and single-unit runs.
type Fixed struct {
	Sky     bool
	Raining bool
	Climate Biome
}

func (f Fixed) CanSeeSky(Pos) bool          { return f.Sky }
func (f Fixed) IsRaining(uint64) bool       { return f.Raining }
func (f Fixed) Biome(Pos) Biome             { return f.Climate }
func (f Fixed) CanPrecipitate(b Biome) bool { return b.Rainfall >= 0.2 }
