package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"song-scanner/wav"
)

// Source yields fixed-duration audio segments from some input. Extract
// returns wav.ErrEndOfStream once the input is exhausted at the given
// offset.
type Source interface {
	Extract(ctx context.Context, offsetS, durationS int) (*wav.Segment, error)
	// Duration reports the total length in seconds when it is known up
	// front. Sources of unknown length return ok=false.
	Duration() (seconds float64, ok bool)
}

// FileSource decodes segments out of an on-disk media file with ffmpeg.
type FileSource struct {
	path       string
	sampleRate int
	channels   int
	durationS  float64
	durKnown   bool
}

// NewFileSource validates that the file exists and that ffmpeg is
// available, then probes the container for a duration. Probe failures
// are not fatal; the source just reports an unknown duration.
func NewFileSource(path string, sampleRate, channels int) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %v", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("cannot open %s: is a directory", path)
	}
	if _, _, err := wav.RequireFFmpeg(); err != nil {
		return nil, err
	}

	s := &FileSource{path: path, sampleRate: sampleRate, channels: channels}
	s.durationS, s.durKnown = wav.ProbeDuration(path)
	return s, nil
}

func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Duration() (float64, bool) {
	return s.durationS, s.durKnown
}

func (s *FileSource) Extract(ctx context.Context, offsetS, durationS int) (*wav.Segment, error) {
	return wav.ExtractSegment(ctx, s.path, offsetS, durationS, s.sampleRate, s.channels)
}

// LiveSource reads raw signed 16-bit little-endian PCM from a stream,
// typically stdin fed by an external capture pipeline. Offsets are
// ignored; each Extract consumes the next durationS seconds.
type LiveSource struct {
	mu         sync.Mutex
	r          io.Reader
	sampleRate int
	channels   int
	done       bool
}

func NewLiveSource(r io.Reader, sampleRate, channels int) *LiveSource {
	return &LiveSource{r: r, sampleRate: sampleRate, channels: channels}
}

func (s *LiveSource) Duration() (float64, bool) { return 0, false }

func (s *LiveSource) Extract(ctx context.Context, _ int, durationS int) (*wav.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return nil, wav.ErrEndOfStream
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	want := durationS * s.sampleRate * s.channels * 2
	buf := make([]byte, want)
	n, err := io.ReadFull(s.r, buf)
	if err != nil {
		s.done = true
		if n == 0 {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, wav.ErrEndOfStream
			}
			return nil, fmt.Errorf("reading live input: %v", err)
		}
		// partial read at end of stream still yields a usable segment
	}
	seg := wav.SegmentFromRaw(buf[:n], s.sampleRate, s.channels)
	if seg == nil {
		return nil, wav.ErrEndOfStream
	}
	return seg, nil
}
