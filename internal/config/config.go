// Package config handles terrain configuration loading and validation.
package config

import (
	"errors"
	"fmt"
)

var ErrInvalid = errors.New("config: invalid")

// Config holds every terrain, meshing and tooling setting.
type Config struct {
	Terrain  TerrainConfig  `yaml:"terrain"`
	Meshing  MeshingConfig  `yaml:"meshing"`
	Simplify SimplifyConfig `yaml:"simplify"`
	Hybrid   HybridConfig   `yaml:"hybrid"`
	Pool     PoolConfig     `yaml:"pool"`
	Source   SourceConfig   `yaml:"source"`
	Logging  LoggingConfig  `yaml:"logging"`
	View     ViewConfig     `yaml:"view"`
}

// TerrainConfig shapes the level rings.
type TerrainConfig struct {
	Levels       int     `yaml:"levels"`        // LOD rings, 0 is finest
	Subregions   int     `yaml:"subregions"`    // regions per axis per level
	SubregionDim int     `yaml:"subregion_dim"` // samples per region edge
	MaxUpdates   int     `yaml:"max_updates"`   // Queued→Generating per tick
	SliceBudget  int     `yaml:"slice_budget"`  // slices streamed per level per tick
	Materials    bool    `yaml:"materials"`
	AnchorMargin float32 `yaml:"anchor_margin"`
}

// MeshingConfig selects the extraction backend.
type MeshingConfig struct {
	Backend   string `yaml:"backend"`   // software | hardware
	Algorithm string `yaml:"algorithm"` // mc | mt
	Workers   int    `yaml:"workers"`   // compute workers, 0 = NumCPU
}

// SimplifyConfig controls decimation of coarse levels.
type SimplifyConfig struct {
	Enabled   bool    `yaml:"enabled"`
	FromLevel int     `yaml:"from_level"` // first level that is decimated
	Ratio     float64 `yaml:"ratio"`      // fraction of non-anchor vertices removed
}

// HybridConfig controls the cross-LOD generator.
type HybridConfig struct {
	Enabled  bool    `yaml:"enabled"`
	CutLevel int     `yaml:"cut_level"`
	Ratio    float64 `yaml:"ratio"`
}

// PoolConfig sizes the shared vertex/index arenas, in elements.
type PoolConfig struct {
	VertexCapacity int `yaml:"vertex_capacity"`
	IndexCapacity  int `yaml:"index_capacity"`
	MinBlock       int `yaml:"min_block"`
}

// SourceConfig parameterises the procedural density source.
type SourceConfig struct {
	Seed             int64   `yaml:"seed"`
	Scale            float64 `yaml:"scale"`
	BaseHeight       int     `yaml:"base_height"`
	GradientStrength float64 `yaml:"gradient_strength"`
	Octaves          int     `yaml:"octaves"`
	Persistence      float64 `yaml:"persistence"`
	Lacunarity       float64 `yaml:"lacunarity"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// ViewConfig holds viewer window settings.
type ViewConfig struct {
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	VSync     bool    `yaml:"vsync"`
	FOV       float32 `yaml:"fov"`
	Speed     float32 `yaml:"speed"`
	Wireframe bool    `yaml:"wireframe"`
	Cull      bool    `yaml:"cull"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Terrain: TerrainConfig{
			Levels:       4,
			Subregions:   4,
			SubregionDim: 17,
			MaxUpdates:   4,
			SliceBudget:  2,
			Materials:    true,
			AnchorMargin: 1,
		},
		Meshing: MeshingConfig{
			Backend:   "software",
			Algorithm: "mc",
		},
		Simplify: SimplifyConfig{
			Enabled:   true,
			FromLevel: 1,
			Ratio:     0.6,
		},
		Hybrid: HybridConfig{
			Enabled:  true,
			CutLevel: 1,
			Ratio:    0.8,
		},
		Pool: PoolConfig{
			VertexCapacity: 1 << 21,
			IndexCapacity:  1 << 23,
			MinBlock:       256,
		},
		Source: SourceConfig{
			Seed:             1337,
			Scale:            1.0 / 64.0,
			BaseHeight:       0,
			GradientStrength: 32,
			Octaves:          4,
			Persistence:      0.5,
			Lacunarity:       2,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		View: ViewConfig{
			Width:  1280,
			Height: 720,
			VSync:  true,
			FOV:    70,
			Speed:  24,
			Cull:   true,
		},
	}
}

// CellsPerRegion is the number of cells along one region edge.
func (t TerrainConfig) CellsPerRegion() int {
	return t.SubregionDim - 1
}

// GridDim is the number of samples along one axis of a level grid.
func (t TerrainConfig) GridDim() int {
	return t.Subregions*t.CellsPerRegion() + 1
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate rejects configurations that cannot be built.
func (c *Config) Validate() error {
	t := c.Terrain
	switch {
	case t.Levels < 1:
		return invalid("terrain.levels must be >= 1, got %d", t.Levels)
	case t.Subregions < 2:
		return invalid("terrain.subregions must be >= 2, got %d", t.Subregions)
	case t.SubregionDim < 3:
		return invalid("terrain.subregion_dim must be >= 3, got %d", t.SubregionDim)
	case t.MaxUpdates < 1:
		return invalid("terrain.max_updates must be >= 1, got %d", t.MaxUpdates)
	case t.SliceBudget < 0:
		return invalid("terrain.slice_budget must be >= 0, got %d", t.SliceBudget)
	case t.AnchorMargin < 0 || t.AnchorMargin*2 > float32(t.CellsPerRegion()):
		return invalid("terrain.anchor_margin %v out of range", t.AnchorMargin)
	}

	switch c.Meshing.Backend {
	case "software", "hardware":
	default:
		return invalid("meshing.backend %q", c.Meshing.Backend)
	}
	switch c.Meshing.Algorithm {
	case "", "mc", "mt", "marching-cubes", "marching-tetrahedra":
	default:
		return invalid("meshing.algorithm %q", c.Meshing.Algorithm)
	}

	if c.Simplify.Ratio < 0 || c.Simplify.Ratio > 1 {
		return invalid("simplify.ratio %v not in [0,1]", c.Simplify.Ratio)
	}
	if c.Simplify.FromLevel < 0 {
		return invalid("simplify.from_level %d", c.Simplify.FromLevel)
	}
	if c.Hybrid.Enabled {
		if c.Hybrid.CutLevel < 1 || c.Hybrid.CutLevel >= t.Levels {
			return invalid("hybrid.cut_level %d needs a finer level and must be < levels (%d)", c.Hybrid.CutLevel, t.Levels)
		}
		if c.Hybrid.Ratio < 0 || c.Hybrid.Ratio > 1 {
			return invalid("hybrid.ratio %v not in [0,1]", c.Hybrid.Ratio)
		}
	}
	if c.Pool.VertexCapacity <= 0 || c.Pool.IndexCapacity <= 0 {
		return invalid("pool capacities must be positive")
	}
	if c.Pool.MinBlock < 0 {
		return invalid("pool.min_block %d", c.Pool.MinBlock)
	}
	return nil
}
