package marker

import (
	"errors"
	"sync"
	"time"

	"github.com/quadrant-vision/marker.report/internal/config"
	"github.com/quadrant-vision/marker.report/internal/timeutil"
)

// ErrScanInFlight is returned by Process when a previous frame is still
// being processed. Callers own the backpressure policy: the expected
// reaction is to drop the frame and submit a fresh one after the current
// result arrives, never to queue.
var ErrScanInFlight = errors.New("frame scan already in flight")

// PipelineStats are cumulative processing counters. Durations are
// measured with the pipeline's clock so tests can pin them.
type PipelineStats struct {
	FramesProcessed  int64
	FramesInvalid    int64
	FramesRejected   int64 // dropped because a scan was in flight
	CandidatesFound  int64
	CandidatesPanics int64
	Detections       int64 // after same-frame resolution
	LastScanDuration time.Duration
}

// Pipeline wires the per-frame stages together: extract candidate quads,
// decode each against the dictionary, resolve same-frame duplicates, and
// feed the tracking window. It processes at most one frame at a time;
// concurrent Process calls beyond the first fail fast with
// ErrScanInFlight.
type Pipeline struct {
	extractor *QuadExtractor
	decoder   *Decoder
	window    *TrackingWindow
	clock     timeutil.Clock
	workers   int

	inFlight sync.Mutex // held for the duration of one Process call

	// OnFrame, when set, is called at the end of every successfully
	// processed frame with that frame's resolved detections and the
	// visible set. Set it before the first Process call; it runs inside
	// the in-flight lock, so a slow observer stretches the scan cycle.
	OnFrame func(resolved []Detection, visible VisibleSet, capturedAt time.Time)

	statsMu sync.Mutex
	stats   PipelineStats
}

// NewPipeline assembles a pipeline from a loaded tuning config and a
// built dictionary. Pass timeutil.RealClock{} outside tests.
func NewPipeline(cfg *config.TuningConfig, dict *Dictionary, clock timeutil.Clock) *Pipeline {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Pipeline{
		extractor: NewQuadExtractor(ExtractorConfigFromTuning(cfg)),
		decoder:   NewDecoder(dict, cfg.GetBorderCells(), cfg.GetCellSubsamples()),
		window:    NewTrackingWindow(cfg.GetMarkerTimeout()),
		clock:     clock,
		workers:   cfg.GetDecodeWorkers(),
	}
}

// Window exposes the tracking window, e.g. for snapshot queries between
// frames.
func (p *Pipeline) Window() *TrackingWindow {
	return p.window
}

// Stats returns a copy of the cumulative counters.
func (p *Pipeline) Stats() PipelineStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

// Process runs one frame through the full pipeline and returns the
// visible set as of the frame's capture time.
//
// An invalid frame (nil, empty, or mismatched pixel buffer) is an
// expected input — cameras glitch — so it is logged and answered with an
// empty visible set and a nil error rather than failing the scan loop.
// The window is left untouched: a glitched frame carries no usable
// timestamp, so it must neither refresh nor evict anything. The only
// error Process returns is ErrScanInFlight.
func (p *Pipeline) Process(f *Frame) (VisibleSet, error) {
	if !p.inFlight.TryLock() {
		p.statsMu.Lock()
		p.stats.FramesRejected++
		p.statsMu.Unlock()
		return nil, ErrScanInFlight
	}
	defer p.inFlight.Unlock()

	started := p.clock.Now()

	if !f.Valid() {
		opsf("[Pipeline] dropping invalid frame")
		p.statsMu.Lock()
		p.stats.FramesInvalid++
		p.statsMu.Unlock()
		return VisibleSet{}, nil
	}

	capturedAt := f.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = started
	}

	quads := p.extractor.Extract(f)
	detections := p.decodeCandidates(f, quads, capturedAt)
	resolved := ResolveFrame(detections)
	visible := p.window.Update(resolved, capturedAt)

	elapsed := p.clock.Since(started)
	p.statsMu.Lock()
	p.stats.FramesProcessed++
	p.stats.CandidatesFound += int64(len(quads))
	p.stats.Detections += int64(len(resolved))
	p.stats.LastScanDuration = elapsed
	p.statsMu.Unlock()

	diagf("[Pipeline] frame %s: %d candidates, %d markers, %d visible (%s)",
		capturedAt.Format(time.RFC3339), len(quads), len(resolved), len(visible), elapsed)

	if p.OnFrame != nil {
		p.OnFrame(resolved, visible, capturedAt)
	}
	return visible, nil
}

// decodeCandidates decodes every candidate quad, sequentially or across a
// bounded worker pool depending on configuration. The dictionary is
// immutable and the decoder stateless, so workers share both freely.
// Output preserves candidate order in both modes, which the resolver's
// tie-break depends on.
func (p *Pipeline) decodeCandidates(f *Frame, quads []Quad, capturedAt time.Time) []Detection {
	if len(quads) == 0 {
		return nil
	}

	results := make([]*Detection, len(quads))

	if p.workers <= 1 || len(quads) == 1 {
		for i, q := range quads {
			results[i] = p.decodeOne(f, q, capturedAt)
		}
	} else {
		workers := p.workers
		if workers > len(quads) {
			workers = len(quads)
		}
		jobs := make(chan int)
		var wg sync.WaitGroup
		wg.Add(workers)
		for w := 0; w < workers; w++ {
			go func() {
				defer wg.Done()
				for i := range jobs {
					results[i] = p.decodeOne(f, quads[i], capturedAt)
				}
			}()
		}
		for i := range quads {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
	}

	detections := make([]Detection, 0, len(quads))
	for _, det := range results {
		if det != nil {
			detections = append(detections, *det)
		}
	}
	return detections
}

// decodeOne decodes a single candidate with panic isolation: a malformed
// quad must cost one candidate, not the frame.
func (p *Pipeline) decodeOne(f *Frame, q Quad, capturedAt time.Time) (det *Detection) {
	defer func() {
		if r := recover(); r != nil {
			opsf("[Pipeline] candidate decode panicked at %.1f,%.1f: %v", q.Center().X, q.Center().Y, r)
			p.statsMu.Lock()
			p.stats.CandidatesPanics++
			p.statsMu.Unlock()
			det = nil
		}
	}()

	d, ok := p.decoder.Decode(f, q, capturedAt)
	if !ok {
		return nil
	}
	return &d
}
