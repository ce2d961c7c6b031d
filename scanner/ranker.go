package scanner

import (
	"math"
	"sort"

	"song-scanner/wav"
)

const fullScaleAmplitude = 32767.0

// RankResult holds the candidate windows of one segment, loudest
// first, with loudness diagnostics for silence gating and logs.
type RankResult struct {
	// Starts are window start offsets in whole seconds relative to the
	// segment, ordered best candidate first.
	Starts []int
	// OverallDBFS is the RMS loudness of the full segment.
	OverallDBFS float64
	// BestDBFS is the RMS loudness of the loudest candidate window.
	BestDBFS float64
}

// RankWindows slides a windowDurS-long window across the segment at
// stepS stride and returns up to maxWindows start offsets ordered by
// loudness, ties broken by earliest start. Candidates that round to
// the same whole-second start are deduplicated before truncation.
//
// A segment shorter than the window yields a single candidate at
// offset 0. Malformed audio yields offset 0 with -Inf scores; the
// caller's silence policy then applies.
func RankWindows(seg *wav.Segment, windowDurS, stepS, maxWindows int) RankResult {
	silent := RankResult{
		Starts:      []int{0},
		OverallDBFS: math.Inf(-1),
		BestDBFS:    math.Inf(-1),
	}

	if seg == nil || seg.SampleRate <= 0 || seg.Channels <= 0 || seg.Frames() == 0 {
		return silent
	}
	if maxWindows < 1 {
		maxWindows = 1
	}
	if stepS < 1 {
		stepS = 1
	}

	frames := seg.Frames()
	overall := rmsDBFS(seg, 0, frames)

	windowFrames := windowDurS * seg.SampleRate
	if windowFrames <= 0 || windowFrames >= frames {
		return RankResult{Starts: []int{0}, OverallDBFS: overall, BestDBFS: overall}
	}

	type candidate struct {
		rms   float64
		start int // frame index
	}

	stepFrames := stepS * seg.SampleRate
	lastStart := frames - windowFrames

	var candidates []candidate
	for start := 0; start <= lastStart; start += stepFrames {
		candidates = append(candidates, candidate{
			rms:   windowRMS(seg, start, windowFrames),
			start: start,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].rms != candidates[j].rms {
			return candidates[i].rms > candidates[j].rms
		}
		return candidates[i].start < candidates[j].start
	})

	best := math.Inf(-1)
	if len(candidates) > 0 && candidates[0].rms > 0 {
		best = 20.0 * math.Log10(candidates[0].rms/fullScaleAmplitude)
	}

	starts := make([]int, 0, maxWindows)
	seen := make(map[int]bool)
	for _, c := range candidates {
		startS := c.start / seg.SampleRate
		if seen[startS] {
			continue
		}
		seen[startS] = true
		starts = append(starts, startS)
		if len(starts) >= maxWindows {
			break
		}
	}
	if len(starts) == 0 {
		starts = []int{0}
	}

	return RankResult{Starts: starts, OverallDBFS: overall, BestDBFS: best}
}

// windowRMS computes the RMS amplitude of windowFrames frames starting
// at startFrame, over the raw interleaved samples. Averaging channels
// first would cancel out-of-phase stereo content and misread it as
// silence.
func windowRMS(seg *wav.Segment, startFrame, windowFrames int) float64 {
	if windowFrames <= 0 {
		return 0
	}
	lo := startFrame * seg.Channels
	hi := (startFrame + windowFrames) * seg.Channels
	sum := 0.0
	for _, v := range seg.Samples[lo:hi] {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum / float64(hi-lo))
}

// rmsDBFS converts the frame span's RMS amplitude to dBFS. Zero RMS
// maps to -Inf, which sorts below any real silence threshold.
func rmsDBFS(seg *wav.Segment, startFrame, windowFrames int) float64 {
	rms := windowRMS(seg, startFrame, windowFrames)
	if rms <= 0 {
		return math.Inf(-1)
	}
	return 20.0 * math.Log10(rms/fullScaleAmplitude)
}
