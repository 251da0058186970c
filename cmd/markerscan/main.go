// Command markerscan runs the marker-detection pipeline over a directory
// of captured frames, tracks marker visibility, and records the scan to
// the database.
package main

import (
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/quadrant-vision/marker.report/internal/config"
	"github.com/quadrant-vision/marker.report/internal/db"
	"github.com/quadrant-vision/marker.report/internal/marker"
	"github.com/quadrant-vision/marker.report/internal/timeutil"
)

func main() {
	// Optional .env for deployment paths; absence is fine.
	_ = godotenv.Load()

	var (
		configPath    = flag.String("config", envOr("MARKER_CONFIG", ""), "tuning config JSON (empty = defaults)")
		markersPath   = flag.String("markers", envOr("MARKER_SET", "markers.txt"), "custom marker set file")
		dbPath        = flag.String("db", envOr("MARKER_DB", "markers.db"), "scan database path")
		migrationsDir = flag.String("migrations", "migrations", "schema migrations directory")
		framesDir     = flag.String("frames", "", "directory of frame images (png/jpeg), scanned in name order")
		fps           = flag.Float64("fps", 1.0, "assumed capture rate of the frame sequence")
		realtime      = flag.Bool("realtime", false, "pace frames at the capture rate instead of flat out")
		notes         = flag.String("notes", "", "session notes to record")
		verbose       = flag.Bool("v", false, "enable diagnostic logging")
	)
	flag.Parse()

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel(*verbose),
		TimeFormat: "15:04:05",
	}))
	slog.SetDefault(logger)

	writers := marker.LogWriters{Ops: os.Stderr}
	if *verbose {
		writers.Diag = os.Stderr
	}
	marker.SetLogWriters(writers)

	if *framesDir == "" {
		fmt.Fprintln(os.Stderr, "usage: markerscan -frames <dir> [-config tuning.json] [-markers markers.txt] [-db markers.db]")
		os.Exit(2)
	}
	if *fps <= 0 {
		logger.Error("fps must be positive", "fps", *fps)
		os.Exit(2)
	}

	if err := run(logger, *configPath, *markersPath, *dbPath, *migrationsDir, *framesDir, *fps, *realtime, *notes); err != nil {
		logger.Error("scan failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath, markersPath, dbPath, migrationsDir, framesDir string, fps float64, realtime bool, notes string) error {
	cfg := config.EmptyTuningConfig()
	if configPath != "" {
		loaded, err := config.LoadTuningConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	set, err := marker.LoadMarkerSet(markersPath, cfg.GetGridSize(), cfg.GetBorderCells())
	if err != nil {
		return err
	}

	dict, err := marker.BuildDictionary(marker.DictionaryConfig{
		GridSize:     cfg.GetGridSize(),
		MaxBitErrors: cfg.GetMaxBitErrors(),
		StandardSize: cfg.GetStandardDictSize(),
		Seed:         cfg.GetGenerationSeed(),
		Custom:       set.Codes,
	})
	if err != nil {
		return fmt.Errorf("building dictionary: %w", err)
	}
	logger.Info("dictionary built",
		"entries", dict.Len(), "custom", len(set.Codes), "dropped_standard", len(dict.Dropped()))

	database, err := db.NewDB(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := database.MigrateUp(migrationsDir); err != nil {
		return err
	}

	frames, err := listFrameFiles(framesDir)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return fmt.Errorf("no frame images in %s", framesDir)
	}
	logger.Info("scanning frames", "dir", framesDir, "count", len(frames), "fps", fps)

	clock := timeutil.RealClock{}
	start := clock.Now()
	sessionID, err := database.StartScanSession(framesDir, notes, start)
	if err != nil {
		return err
	}
	logger.Info("scan session started", "session", sessionID)

	pipeline := marker.NewPipeline(cfg, dict, clock)
	spans := db.NewSpanTracker(database, sessionID)
	var persistErr error
	pipeline.OnFrame = func(resolved []marker.Detection, visible marker.VisibleSet, capturedAt time.Time) {
		if err := database.RecordDetections(sessionID, resolved); err != nil && persistErr == nil {
			persistErr = err
		}
		if err := spans.Apply(visible); err != nil && persistErr == nil {
			persistErr = err
		}
	}

	period := time.Duration(float64(time.Second) / fps)
	var pacer timeutil.Ticker
	if realtime {
		pacer = clock.NewTicker(period)
		defer pacer.Stop()
	}

	var prevVisible marker.VisibleSet
	for i, path := range frames {
		frame, err := loadFrame(path, start.Add(time.Duration(i)*period))
		if err != nil {
			logger.Warn("skipping unreadable frame", "path", path, "err", err)
			continue
		}

		visible, err := pipeline.Process(frame)
		if err != nil {
			// Sequential submission cannot race itself; any error here is a bug.
			return fmt.Errorf("processing %s: %w", path, err)
		}
		if persistErr != nil {
			return fmt.Errorf("persisting scan: %w", persistErr)
		}

		logTransitions(logger, prevVisible, visible)
		prevVisible = visible

		if pacer != nil && i < len(frames)-1 {
			<-pacer.C()
		}
	}

	if err := spans.Close(); err != nil {
		return err
	}
	if err := database.EndScanSession(sessionID, clock.Now()); err != nil {
		return err
	}

	stats := pipeline.Stats()
	logger.Info("scan complete",
		"session", sessionID,
		"frames", stats.FramesProcessed,
		"invalid", stats.FramesInvalid,
		"candidates", stats.CandidatesFound,
		"detections", stats.Detections,
		"last_scan", stats.LastScanDuration,
	)
	return nil
}

// listFrameFiles returns the frame images in name order. Capture rigs
// write zero-padded sequence numbers, so lexicographic order is capture
// order.
func listFrameFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading frames dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".png", ".jpg", ".jpeg":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func loadFrame(path string, capturedAt time.Time) (*marker.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return marker.FrameFromImage(img, capturedAt), nil
}

func logTransitions(logger *slog.Logger, prev, cur marker.VisibleSet) {
	for _, m := range cur {
		if !prev.Contains(m.ID) {
			logger.Info("marker appeared", "id", m.ID, "source", m.Source)
		}
	}
	for _, m := range prev {
		if !cur.Contains(m.ID) {
			logger.Info("marker disappeared", "id", m.ID, "source", m.Source)
		}
	}
}

func logLevel(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
