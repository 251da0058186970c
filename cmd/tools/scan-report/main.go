// Command scan-report renders an HTML report for a recorded scan session:
// detections per marker and visibility span durations, charted with
// go-echarts.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/lmittmann/tint"

	"github.com/quadrant-vision/marker.report/internal/db"
)

func main() {
	var (
		dbPath    = flag.String("db", "markers.db", "scan database path")
		sessionID = flag.String("session", "", "session ID to report on (empty = most recent)")
		outPath   = flag.String("out", "scan-report.html", "output HTML path")
		list      = flag.Bool("list", false, "list sessions and exit")
	)
	flag.Parse()

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{TimeFormat: "15:04:05"}))
	slog.SetDefault(logger)

	if err := run(logger, *dbPath, *sessionID, *outPath, *list); err != nil {
		logger.Error("scan-report failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, dbPath, sessionID, outPath string, list bool) error {
	database, err := db.NewDB(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	sessions, err := database.ListScanSessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return fmt.Errorf("no scan sessions in %s", dbPath)
	}

	if list {
		for _, s := range sessions {
			end := "open"
			if s.EndedAt != nil {
				end = s.EndedAt.Format(time.RFC3339)
			}
			fmt.Printf("%s  %s .. %s  %s\n", s.ID, s.StartedAt.Format(time.RFC3339), end, s.Source)
		}
		return nil
	}

	session := sessions[0]
	if sessionID != "" {
		session, err = database.GetScanSession(sessionID)
		if err != nil {
			return fmt.Errorf("loading session %s: %w", sessionID, err)
		}
	}

	counts, err := database.DetectionCounts(session.ID)
	if err != nil {
		return err
	}
	spans, err := database.SpansBySession(session.ID)
	if err != nil {
		return err
	}

	page := components.NewPage()
	page.SetPageTitle("Marker Scan Report")
	page.AddCharts(detectionsChart(session, counts), spansChart(session, spans))

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := page.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("rendering report: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	logger.Info("report written",
		"session", session.ID, "markers", len(counts), "spans", len(spans), "out", outPath)
	return nil
}

// detectionsChart plots total detections per marker ID.
func detectionsChart(session db.ScanSession, counts map[int]int64) *charts.Bar {
	ids := make([]int, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	labels := make([]string, len(ids))
	data := make([]opts.BarData, len(ids))
	for i, id := range ids {
		labels[i] = fmt.Sprintf("%d", id)
		data[i] = opts.BarData{Value: counts[id]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Detections per marker",
			Subtitle: fmt.Sprintf("session %s, started %s", session.ID, session.StartedAt.Format(time.RFC3339)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "marker ID"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "detections"}),
	)
	bar.SetXAxis(labels)
	bar.AddSeries("detections", data,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	return bar
}

// spansChart plots every visibility span's duration, grouped by marker.
func spansChart(session db.ScanSession, spans []db.VisibleSpan) *charts.Bar {
	labels := make([]string, len(spans))
	data := make([]opts.BarData, len(spans))
	for i, s := range spans {
		labels[i] = fmt.Sprintf("%d @%s", s.MarkerID, s.FirstSeen.Format("15:04:05"))
		data[i] = opts.BarData{Value: s.LastSeen.Sub(s.FirstSeen).Seconds()}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Visibility span durations",
			Subtitle: fmt.Sprintf("%d spans in session %s", len(spans), session.ID),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "marker / first seen"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "seconds visible"}),
	)
	bar.SetXAxis(labels)
	bar.AddSeries("span seconds", data)
	return bar
}
