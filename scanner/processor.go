package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"song-scanner/utils"
	"song-scanner/wav"
)

// Processor turns one sample offset into a terminal SampleResult:
// extract audio, rank candidate windows, skip silence, and recognize
// the loudest windows until one matches.
type Processor struct {
	cfg      Config
	rec      Recognizer
	throttle *Throttle
	emitter  *Emitter
	logger   *slog.Logger

	metaWarn *sync.Once
}

func NewProcessor(cfg Config, rec Recognizer, throttle *Throttle, emitter *Emitter, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = utils.Logger()
	}
	return &Processor{
		cfg:      cfg,
		rec:      rec,
		throttle: throttle,
		emitter:  emitter,
		logger:   logger,
		metaWarn: &sync.Once{},
	}
}

// Process handles the sample starting at offsetS. Network traffic only
// happens for samples whose loudest window clears the silence
// threshold; everything below it is reported as no-match locally.
func (p *Processor) Process(ctx context.Context, src Source, offsetS int) SampleResult {
	result := SampleResult{OffsetS: offsetS}

	if err := ctx.Err(); err != nil {
		result.Outcome = OutcomeStopped
		return result
	}

	seg, err := src.Extract(ctx, offsetS, p.cfg.SampleDurationS)
	if err != nil {
		switch {
		case errors.Is(err, wav.ErrEndOfStream):
			result.Outcome = OutcomeEOF
		case ctx.Err() != nil:
			result.Outcome = OutcomeStopped
		default:
			result.Outcome = OutcomeError
			result.Err = fmt.Errorf("extracting sample at %s: %v", utils.FormatHMS(offsetS), err)
		}
		return result
	}

	if seg.SampleRate != p.cfg.SampleRate || seg.Channels != p.cfg.Channels {
		p.metaWarn.Do(func() {
			p.emitter.Emit(Event{
				Kind: EventWarn,
				Text: fmt.Sprintf("decoded audio is %d Hz %dch, expected %d Hz %dch",
					seg.SampleRate, seg.Channels, p.cfg.SampleRate, p.cfg.Channels),
			})
		})
	}

	ranked := RankWindows(seg, p.cfg.SignatureDurationS, p.cfg.WindowStepS, p.cfg.MaxWindowsPerSample)
	if ranked.BestDBFS < p.cfg.SilenceThresholdDBFS {
		if p.cfg.DebugAudio {
			p.emitter.Emit(Event{
				Kind:    EventStatus,
				OffsetS: offsetS,
				Text: fmt.Sprintf("skipping silent sample at %s (%.1f dBFS)",
					utils.FormatHMS(offsetS), ranked.BestDBFS),
			})
		}
		result.Outcome = OutcomeNoMatch
		return result
	}

	timeout := time.Duration(p.cfg.RecognizeTimeoutS) * time.Second
	for _, winStart := range ranked.Starts {
		if err := ctx.Err(); err != nil {
			result.Outcome = OutcomeStopped
			return result
		}

		window := seg.Slice(winStart, p.cfg.SignatureDurationS)
		if window == nil {
			continue
		}
		wavBytes, err := window.WAV()
		if err != nil {
			result.Outcome = OutcomeError
			result.Err = fmt.Errorf("encoding window at %s: %v", utils.FormatHMS(offsetS+winStart), err)
			return result
		}

		p.logger.Debug("recognizing window",
			slog.Int("offset", offsetS),
			slog.Int("window_start", winStart),
			slog.Float64("dbfs", ranked.BestDBFS))

		// results are labeled at the window position, not the sample
		res := attempt(ctx, p.rec, p.throttle, p.emitter, wavBytes, offsetS+winStart, timeout)
		result.RateLimits += res.RateLimits
		switch res.Outcome {
		case OutcomeMatch:
			result.Outcome = OutcomeMatch
			result.Text = res.Text
			result.OffsetS = res.OffsetS
			return result
		case OutcomeNoMatch:
			// try the next loudest window
		default:
			result.Outcome = res.Outcome
			result.Err = res.Err
			return result
		}
	}

	result.Outcome = OutcomeNoMatch
	return result
}
