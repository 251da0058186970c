package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for detector tuning
// parameters. All fields are pointers so a partial JSON file only
// overrides the values it names; the Get* accessors supply defaults
// for anything left unset.
type TuningConfig struct {
	// Dictionary params
	GridSize         *int   `json:"grid_size,omitempty"`          // marker interior cells per side (N)
	BorderCells      *int   `json:"border_cells,omitempty"`       // black border ring width in cells
	MaxBitErrors     *int   `json:"max_bit_errors,omitempty"`     // Hamming error-correction budget
	StandardDictSize *int   `json:"standard_dict_size,omitempty"` // number of generated standard entries
	GenerationSeed   *int64 `json:"generation_seed,omitempty"`    // seed for the standard-code search

	// Extractor params
	MinCandidateArea      *float64 `json:"min_candidate_area,omitempty"`    // px², reject smaller quads
	MinCornerSeparation   *float64 `json:"min_corner_separation,omitempty"` // px, reject degenerate quads
	MaxEdgeRatio          *float64 `json:"max_edge_ratio,omitempty"`        // longest/shortest edge bound
	ThresholdWindowFrac   *float64 `json:"threshold_window_frac,omitempty"` // adaptive window as fraction of min(W,H)
	ThresholdOffset       *float64 `json:"threshold_offset,omitempty"`      // subtracted from local mean
	ApproxEpsilonFrac     *float64 `json:"approx_epsilon_frac,omitempty"`   // polygon epsilon as fraction of perimeter
	MaxCandidatesPerFrame *int     `json:"max_candidates_per_frame,omitempty"`

	// Codec params
	CellSubsamples *int `json:"cell_subsamples,omitempty"` // subsample grid per cell side
	DecodeWorkers  *int `json:"decode_workers,omitempty"`  // concurrent candidate decodes (1 = sequential)

	// Tracking params
	MarkerTimeout *string `json:"marker_timeout,omitempty"` // duration string like "120s"
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from a JSON file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON file retain their
// default values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid. Invalid
// dictionary parameters are a startup-time failure: a bit-error budget
// at or above half the code length would make decoding ambiguous.
func (c *TuningConfig) Validate() error {
	n := c.GetGridSize()
	if n < 3 || n > 8 {
		return fmt.Errorf("grid_size must be between 3 and 8, got %d", n)
	}

	if c.BorderCells != nil && *c.BorderCells != 1 {
		return fmt.Errorf("border_cells must be 1, got %d", *c.BorderCells)
	}

	if c.MaxBitErrors != nil {
		bits := n * n
		if *c.MaxBitErrors < 0 || *c.MaxBitErrors >= bits/2 {
			return fmt.Errorf("max_bit_errors must be in [0, %d), got %d", bits/2, *c.MaxBitErrors)
		}
	}

	if c.StandardDictSize != nil {
		if *c.StandardDictSize < 0 || *c.StandardDictSize > 1000 {
			return fmt.Errorf("standard_dict_size must be in [0, 1000], got %d", *c.StandardDictSize)
		}
	}

	if c.MinCandidateArea != nil && *c.MinCandidateArea < 0 {
		return fmt.Errorf("min_candidate_area must be non-negative, got %f", *c.MinCandidateArea)
	}

	if c.ThresholdWindowFrac != nil {
		if *c.ThresholdWindowFrac <= 0 || *c.ThresholdWindowFrac > 1 {
			return fmt.Errorf("threshold_window_frac must be in (0, 1], got %f", *c.ThresholdWindowFrac)
		}
	}

	if c.ApproxEpsilonFrac != nil {
		if *c.ApproxEpsilonFrac <= 0 || *c.ApproxEpsilonFrac >= 0.5 {
			return fmt.Errorf("approx_epsilon_frac must be in (0, 0.5), got %f", *c.ApproxEpsilonFrac)
		}
	}

	if c.CellSubsamples != nil && *c.CellSubsamples < 1 {
		return fmt.Errorf("cell_subsamples must be >= 1, got %d", *c.CellSubsamples)
	}

	if c.DecodeWorkers != nil && *c.DecodeWorkers < 1 {
		return fmt.Errorf("decode_workers must be >= 1, got %d", *c.DecodeWorkers)
	}

	if c.MarkerTimeout != nil && *c.MarkerTimeout != "" {
		d, err := time.ParseDuration(*c.MarkerTimeout)
		if err != nil {
			return fmt.Errorf("invalid marker_timeout '%s': %w", *c.MarkerTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("marker_timeout must be positive, got %s", d)
		}
	}

	return nil
}

// GetGridSize returns the marker interior grid size N (default 6).
func (c *TuningConfig) GetGridSize() int {
	if c.GridSize != nil {
		return *c.GridSize
	}
	return 6
}

// GetBorderCells returns the border ring width in cells (default 1).
func (c *TuningConfig) GetBorderCells() int {
	if c.BorderCells != nil {
		return *c.BorderCells
	}
	return 1
}

// GetMaxBitErrors returns the Hamming error-correction budget (default 3).
func (c *TuningConfig) GetMaxBitErrors() int {
	if c.MaxBitErrors != nil {
		return *c.MaxBitErrors
	}
	return 3
}

// GetStandardDictSize returns the standard dictionary entry count (default 250).
func (c *TuningConfig) GetStandardDictSize() int {
	if c.StandardDictSize != nil {
		return *c.StandardDictSize
	}
	return 250
}

// GetGenerationSeed returns the standard-code search seed (default 0x6c6c).
func (c *TuningConfig) GetGenerationSeed() int64 {
	if c.GenerationSeed != nil {
		return *c.GenerationSeed
	}
	return 0x6c6c
}

// GetMinCandidateArea returns the minimum candidate area in px² (default 400).
func (c *TuningConfig) GetMinCandidateArea() float64 {
	if c.MinCandidateArea != nil {
		return *c.MinCandidateArea
	}
	return 400
}

// GetMinCornerSeparation returns the minimum corner separation in px (default 10).
func (c *TuningConfig) GetMinCornerSeparation() float64 {
	if c.MinCornerSeparation != nil {
		return *c.MinCornerSeparation
	}
	return 10
}

// GetMaxEdgeRatio returns the longest/shortest edge ratio bound (default 4).
func (c *TuningConfig) GetMaxEdgeRatio() float64 {
	if c.MaxEdgeRatio != nil {
		return *c.MaxEdgeRatio
	}
	return 4
}

// GetThresholdWindowFrac returns the adaptive threshold window fraction (default 0.125).
func (c *TuningConfig) GetThresholdWindowFrac() float64 {
	if c.ThresholdWindowFrac != nil {
		return *c.ThresholdWindowFrac
	}
	return 0.125
}

// GetThresholdOffset returns the adaptive threshold offset (default 7).
func (c *TuningConfig) GetThresholdOffset() float64 {
	if c.ThresholdOffset != nil {
		return *c.ThresholdOffset
	}
	return 7
}

// GetApproxEpsilonFrac returns the polygon approximation epsilon fraction (default 0.05).
func (c *TuningConfig) GetApproxEpsilonFrac() float64 {
	if c.ApproxEpsilonFrac != nil {
		return *c.ApproxEpsilonFrac
	}
	return 0.05
}

// GetMaxCandidatesPerFrame returns the per-frame candidate cap (default 64).
func (c *TuningConfig) GetMaxCandidatesPerFrame() int {
	if c.MaxCandidatesPerFrame != nil {
		return *c.MaxCandidatesPerFrame
	}
	return 64
}

// GetCellSubsamples returns the subsample grid side per cell (default 3).
func (c *TuningConfig) GetCellSubsamples() int {
	if c.CellSubsamples != nil {
		return *c.CellSubsamples
	}
	return 3
}

// GetDecodeWorkers returns the concurrent decode worker count (default 1).
func (c *TuningConfig) GetDecodeWorkers() int {
	if c.DecodeWorkers != nil {
		return *c.DecodeWorkers
	}
	return 1
}

// GetMarkerTimeout returns how long a marker stays visible after its last
// detection (default 120s, matching the live deployment).
func (c *TuningConfig) GetMarkerTimeout() time.Duration {
	if c.MarkerTimeout != nil && *c.MarkerTimeout != "" {
		if d, err := time.ParseDuration(*c.MarkerTimeout); err == nil {
			return d
		}
	}
	return 120 * time.Second
}
