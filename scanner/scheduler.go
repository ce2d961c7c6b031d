package scanner

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"song-scanner/utils"
)

// ScanStats summarizes a finished (or stopped) scan. Samples the scan
// never reached and samples abandoned by cancellation are not counted.
type ScanStats struct {
	Done       int
	Matches    int
	NoMatch    int
	Errors     int
	RateLimits int
	Total      int
	TotalKnown bool
}

// Scheduler walks a source at the configured interval and drives each
// sample through a Processor. Sources with a known duration get a
// worker pool; unknown-length sources are scanned sequentially since
// the next sample may not exist yet.
type Scheduler struct {
	cfg           Config
	newRecognizer func() Recognizer
	emitter       *Emitter
	logger        *slog.Logger

	// SourcePath and OutputPath, when set before Run, are carried on
	// the meta event so consumers can label the scan.
	SourcePath string
	OutputPath string
}

func NewScheduler(cfg Config, newRecognizer func() Recognizer, emitter *Emitter, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = utils.Logger()
	}
	return &Scheduler{
		cfg:           cfg.Normalized(),
		newRecognizer: newRecognizer,
		emitter:       emitter,
		logger:        logger,
	}
}

type job struct {
	index   int
	offsetS int
}

// Run scans src to completion, writing matches to sink. The events
// channel is closed before Run returns. The returned error is non-nil
// only when the scan was cancelled before finishing.
func (s *Scheduler) Run(ctx context.Context, src Source, sink ResultSink) (ScanStats, error) {
	defer s.emitter.CloseEvents()

	durationS, durKnown := src.Duration()
	stats := ScanStats{}
	if durKnown {
		stats.Total = totalSamples(durationS, s.cfg.IntervalS)
		stats.TotalKnown = true
	}

	s.emitter.Emit(Event{
		Kind:          EventMeta,
		SourcePath:    s.SourcePath,
		OutputPath:    s.OutputPath,
		DurationS:     durationS,
		DurationKnown: durKnown,
		TotalSamples:  stats.Total,
		Workers:       s.cfg.Workers,
	})

	started := time.Now()
	var err error
	if durKnown && s.cfg.Workers > 1 {
		err = s.runPool(ctx, src, sink, &stats, started)
	} else {
		err = s.runSequential(ctx, src, sink, &stats, started)
	}

	if err != nil {
		s.emitter.Emit(Event{Kind: EventStopped, Done: stats.Done, Matches: stats.Matches})
	} else {
		s.emitter.Emit(Event{Kind: EventDone, Done: stats.Done, Matches: stats.Matches})
	}
	return stats, err
}

func totalSamples(durationS float64, intervalS int) int {
	n := int(math.Ceil(durationS / float64(intervalS)))
	if n < 1 {
		n = 1
	}
	return n
}

// runPool fans samples out to a fixed worker pool. At most
// max(4, workers*3) samples are in flight so a stop never strands a
// long queue of submitted work.
func (s *Scheduler) runPool(ctx context.Context, src Source, sink ResultSink, stats *ScanStats, started time.Time) error {
	maxInflight := s.cfg.Workers * 3
	if maxInflight < 4 {
		maxInflight = 4
	}

	throttle := NewThrottle(time.Duration(s.cfg.MinAPIIntervalS) * time.Second)
	jobs := make(chan job, maxInflight)
	results := make(chan SampleResult, maxInflight)
	sharedWarn := &sync.Once{}

	var wg sync.WaitGroup
	for w := 0; w < s.cfg.Workers; w++ {
		proc := NewProcessor(s.cfg, s.newRecognizer(), throttle, s.emitter, s.logger)
		proc.metaWarn = sharedWarn
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results <- proc.Process(ctx, src, j.offsetS)
			}
		}()
	}

	next := 0
	inflight := 0
	eofSeen := false
	stopping := false

	submit := func() {
		for !stopping && !eofSeen && next < stats.Total && inflight < maxInflight {
			jobs <- job{index: next, offsetS: next * s.cfg.IntervalS}
			next++
			inflight++
		}
	}
	submit()

	poll := time.NewTicker(250 * time.Millisecond)
	defer poll.Stop()

	for inflight > 0 {
		if !stopping && ctx.Err() != nil {
			stopping = true
		}

		select {
		case res := <-results:
			inflight--
			if s.account(res, sink, stats, started) {
				eofSeen = true
			}
		case <-poll.C:
		}

		// harvest everything already finished before submitting more
		for {
			select {
			case res := <-results:
				inflight--
				if s.account(res, sink, stats, started) {
					eofSeen = true
				}
			default:
				goto drained
			}
		}
	drained:
		submit()
	}
	close(jobs)
	wg.Wait()

	if stats.TotalKnown && stats.Done != stats.Total {
		// stream ended early or scan was cancelled
		stats.Total = stats.Done
	}
	return ctx.Err()
}

// runSequential scans one sample at a time. Used for unknown-length
// sources and for Workers == 1.
func (s *Scheduler) runSequential(ctx context.Context, src Source, sink ResultSink, stats *ScanStats, started time.Time) error {
	throttle := NewThrottle(time.Duration(s.cfg.MinAPIIntervalS) * time.Second)
	proc := NewProcessor(s.cfg, s.newRecognizer(), throttle, s.emitter, s.logger)

	for i := 0; ; i++ {
		if stats.TotalKnown && i >= stats.Total {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		res := proc.Process(ctx, src, i*s.cfg.IntervalS)
		if res.Outcome == OutcomeEOF {
			if stats.TotalKnown {
				stats.Total = stats.Done
			}
			return nil
		}
		if res.Outcome == OutcomeStopped {
			return ctx.Err()
		}
		s.account(res, sink, stats, started)
	}
}

// account folds one terminal result into the stats and emits the
// match and progress events. Only the scheduling goroutine calls it.
// The return value reports an early end of stream.
func (s *Scheduler) account(res SampleResult, sink ResultSink, stats *ScanStats, started time.Time) bool {
	if res.Outcome == OutcomeStopped {
		return false
	}
	if res.Outcome == OutcomeEOF {
		if stats.TotalKnown && stats.Done < stats.Total {
			stats.Total = stats.Done
		}
		return true
	}

	stats.Done++
	stats.RateLimits += res.RateLimits

	switch res.Outcome {
	case OutcomeMatch:
		stats.Matches++
		isNew, err := sink.WriteIfNew(res.OffsetS, res.Text)
		if err != nil {
			s.logger.Error("writing match", utils.ErrAttr(err))
		} else if isNew {
			s.emitter.Emit(Event{Kind: EventMatch, OffsetS: res.OffsetS, Text: res.Text})
		}
	case OutcomeNoMatch:
		stats.NoMatch++
	case OutcomeError:
		stats.Errors++
		s.emitter.Emit(Event{Kind: EventError, OffsetS: res.OffsetS, Err: res.Err})
		s.logger.Warn("sample failed", slog.Int("offset", res.OffsetS), utils.ErrAttr(res.Err))
	}

	elapsed := time.Since(started).Seconds()
	ev := Event{
		Kind:       EventProgress,
		Done:       stats.Done,
		Total:      stats.Total,
		TotalKnown: stats.TotalKnown,
		ElapsedS:   elapsed,
		OffsetS:    res.OffsetS,
		Matches:    stats.Matches,
		NoMatch:    stats.NoMatch,
		Errors:     stats.Errors,
		RateLimits: stats.RateLimits,
	}
	if stats.TotalKnown && stats.Done > 0 && stats.Done < stats.Total {
		ev.ETAS = elapsed / float64(stats.Done) * float64(stats.Total-stats.Done)
		ev.HasETA = true
	}
	s.emitter.Emit(ev)
	return false
}
