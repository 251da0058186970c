// Command markergen renders printable marker images from the dictionary:
// individual PNGs per marker ID and an optional combined sheet.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lmittmann/tint"

	"github.com/quadrant-vision/marker.report/internal/config"
	"github.com/quadrant-vision/marker.report/internal/marker"
)

func main() {
	var (
		configPath  = flag.String("config", "", "tuning config JSON (empty = defaults)")
		markersPath = flag.String("markers", "", "custom marker set file (empty = standard only)")
		outDir      = flag.String("out", "markers", "output directory for marker PNGs")
		idsFlag     = flag.String("ids", "", "comma-separated marker IDs to render (empty = -count lowest IDs)")
		count       = flag.Int("count", 10, "number of markers to render when -ids is empty")
		cellPx      = flag.Int("cell-px", 32, "pixels per marker cell")
		quietCells  = flag.Int("quiet", 1, "white quiet-zone cells around each marker")
		sheet       = flag.String("sheet", "", "also write a combined sheet PNG to this path")
		columns     = flag.Int("columns", 4, "sheet columns")
		writeSet    = flag.String("write-set", "", "also dump the rendered codes in marker-set notation to this path")
	)
	flag.Parse()

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{TimeFormat: "15:04:05"}))
	slog.SetDefault(logger)

	if err := run(logger, *configPath, *markersPath, *outDir, *idsFlag, *count,
		*cellPx, *quietCells, *sheet, *columns, *writeSet); err != nil {
		logger.Error("markergen failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath, markersPath, outDir, idsFlag string, count,
	cellPx, quietCells int, sheetPath string, columns int, writeSetPath string) error {

	cfg := config.EmptyTuningConfig()
	if configPath != "" {
		loaded, err := config.LoadTuningConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	custom := map[int]marker.BitGrid{}
	if markersPath != "" {
		set, err := marker.LoadMarkerSet(markersPath, cfg.GetGridSize(), cfg.GetBorderCells())
		if err != nil {
			return err
		}
		custom = set.Codes
	}

	dict, err := marker.BuildDictionary(marker.DictionaryConfig{
		GridSize:     cfg.GetGridSize(),
		MaxBitErrors: cfg.GetMaxBitErrors(),
		StandardSize: cfg.GetStandardDictSize(),
		Seed:         cfg.GetGenerationSeed(),
		Custom:       custom,
	})
	if err != nil {
		return fmt.Errorf("building dictionary: %w", err)
	}

	entries, err := selectEntries(dict, idsFlag, count)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	border := cfg.GetBorderCells()
	codes := make([]marker.BitGrid, 0, len(entries))
	for _, e := range entries {
		codes = append(codes, e.Code)
		img := marker.RenderMarker(e.Code, border, cellPx, quietCells)
		path := filepath.Join(outDir, fmt.Sprintf("marker_%03d.png", e.ID))
		if err := writePNG(path, img); err != nil {
			return err
		}
		logger.Info("rendered marker", "id", e.ID, "source", e.Source, "path", path)
	}

	if sheetPath != "" {
		img, err := marker.RenderSheet(codes, border, cellPx, quietCells, columns)
		if err != nil {
			return err
		}
		if err := writePNG(sheetPath, img); err != nil {
			return err
		}
		logger.Info("rendered sheet", "path", sheetPath, "markers", len(codes))
	}

	if writeSetPath != "" {
		set := &marker.MarkerSet{
			GridSize:    cfg.GetGridSize(),
			BorderCells: border,
			Codes:       map[int]marker.BitGrid{},
		}
		for _, e := range entries {
			set.Codes[e.ID] = e.Code
		}
		if err := marker.SaveMarkerSet(writeSetPath, set); err != nil {
			return err
		}
		logger.Info("wrote marker set", "path", writeSetPath, "markers", len(set.Codes))
	}
	return nil
}

// selectEntries resolves the -ids / -count flags against the dictionary.
func selectEntries(dict *marker.Dictionary, idsFlag string, count int) ([]marker.Entry, error) {
	if idsFlag == "" {
		entries := dict.Entries()
		if count < len(entries) {
			entries = entries[:count]
		}
		return entries, nil
	}

	var entries []marker.Entry
	for _, part := range strings.Split(idsFlag, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid marker ID %q", part)
		}
		e, ok := dict.EntryByID(id)
		if !ok {
			return nil, fmt.Errorf("marker ID %d not in dictionary", id)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func writePNG(path string, img *image.Gray) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}
