package wav

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
)

const fullScale = 32767.0

// Segment is a self-describing buffer of decoded PCM16 audio. Samples
// are interleaved when Channels > 1.
type Segment struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// Frames returns the number of sample frames (one frame spans all
// channels).
func (s *Segment) Frames() int {
	if s == nil || s.Channels <= 0 {
		return 0
	}
	return len(s.Samples) / s.Channels
}

// Duration returns the segment length in seconds.
func (s *Segment) Duration() float64 {
	if s == nil || s.SampleRate <= 0 {
		return 0
	}
	return float64(s.Frames()) / float64(s.SampleRate)
}

// Slice returns a copy of the span [startS, startS+durationS) or nil
// when the requested span starts past the end of the segment. A span
// that runs past the end is truncated.
func (s *Segment) Slice(startS, durationS int) *Segment {
	if s == nil || durationS <= 0 {
		return nil
	}
	if startS < 0 {
		startS = 0
	}

	startFrame := startS * s.SampleRate
	endFrame := startFrame + durationS*s.SampleRate
	frames := s.Frames()

	if startFrame >= frames {
		return nil
	}
	if endFrame > frames {
		endFrame = frames
	}

	out := make([]int16, (endFrame-startFrame)*s.Channels)
	copy(out, s.Samples[startFrame*s.Channels:endFrame*s.Channels])

	return &Segment{
		SampleRate: s.SampleRate,
		Channels:   s.Channels,
		Samples:    out,
	}
}

// MonoFrame returns the channel-averaged value of frame i.
func (s *Segment) MonoFrame(i int) float64 {
	if s.Channels == 1 {
		return float64(s.Samples[i])
	}
	sum := 0.0
	base := i * s.Channels
	for c := 0; c < s.Channels; c++ {
		sum += float64(s.Samples[base+c])
	}
	return sum / float64(s.Channels)
}

// WAV encodes the segment as a PCM16 WAV byte stream, the format the
// recognition API expects.
func (s *Segment) WAV() ([]byte, error) {
	if s == nil || s.Frames() == 0 {
		return nil, errors.New("cannot encode empty segment")
	}

	var buf writeSeekBuffer
	enc := gowav.NewEncoder(&buf, s.SampleRate, 16, s.Channels, 1)

	data := make([]int, len(s.Samples))
	for i, v := range s.Samples {
		data[i] = int(v)
	}

	err := enc.Write(&audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: s.Channels,
			SampleRate:  s.SampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize wav: %v", err)
	}

	return buf.data, nil
}

// DecodeWAV parses a PCM16 WAV byte stream into a Segment.
func DecodeWAV(wavBytes []byte) (*Segment, error) {
	dec := gowav.NewDecoder(bytes.NewReader(wavBytes))
	if !dec.IsValidFile() {
		return nil, errors.New("not a valid wav stream")
	}
	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d: only 16-bit PCM supported", dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode wav: %v", err)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}

	return &Segment{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		Samples:    samples,
	}, nil
}

// SegmentFromRaw builds a Segment from little-endian s16le bytes,
// discarding any trailing partial frame. Returns nil for empty input.
func SegmentFromRaw(raw []byte, sampleRate, channels int) *Segment {
	frameSize := channels * 2
	if frameSize <= 0 {
		return nil
	}
	raw = raw[:len(raw)-len(raw)%frameSize]
	if len(raw) == 0 {
		return nil
	}

	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
	}

	return &Segment{
		SampleRate: sampleRate,
		Channels:   channels,
		Samples:    samples,
	}
}

// writeSeekBuffer is a minimal in-memory io.WriteSeeker for the wav
// encoder, which seeks back to patch chunk sizes on Close.
type writeSeekBuffer struct {
	data []byte
	pos  int
}

func (b *writeSeekBuffer) Write(p []byte) (int, error) {
	if grow := b.pos + len(p) - len(b.data); grow > 0 {
		b.data = append(b.data, make([]byte, grow)...)
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *writeSeekBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case 0:
		pos = offset
	case 1:
		pos = int64(b.pos) + offset
	case 2:
		pos = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, errors.New("negative seek position")
	}
	b.pos = int(pos)
	return pos, nil
}
