package scanner

import (
	"fmt"
	"io"
	"os"
	"sync"

	"song-scanner/utils"
)

// ResultSink receives recognized tracks. WriteIfNew reports whether
// the track text was new; duplicates are silently dropped so a song
// spanning several samples appears once.
type ResultSink interface {
	WriteIfNew(offsetS int, text string) (bool, error)
	Close() error
}

// TextSink appends "hh:mm:ss<TAB>track" lines to a writer, keeping
// first-seen order and deduplicating by track text.
type TextSink struct {
	mu     sync.Mutex
	w      io.Writer
	f      *os.File
	seen   map[string]bool
	closed bool
}

// NewTextSink creates (or truncates) the file at path.
func NewTextSink(path string) (*TextSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating result file: %v", err)
	}
	return &TextSink{w: f, f: f, seen: make(map[string]bool)}, nil
}

// NewStreamSink writes to an already-open writer, e.g. stdout. Close
// is a no-op.
func NewStreamSink(w io.Writer) *TextSink {
	return &TextSink{w: w, seen: make(map[string]bool)}
}

func (s *TextSink) WriteIfNew(offsetS int, text string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, fmt.Errorf("result sink is closed")
	}
	if s.seen[text] {
		return false, nil
	}
	if _, err := fmt.Fprintf(s.w, "%s\t%s\n", utils.FormatHMS(offsetS), text); err != nil {
		return false, fmt.Errorf("writing result: %v", err)
	}
	s.seen[text] = true
	if s.f != nil {
		// flush each line so partial results survive interruption
		if err := s.f.Sync(); err != nil {
			return true, fmt.Errorf("syncing result file: %v", err)
		}
	}
	return true, nil
}

func (s *TextSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.f != nil {
		return s.f.Close()
	}
	return nil
}

// FanoutSink forwards each write to every sink in order. A track is
// reported new when the first sink says so.
type FanoutSink struct {
	Sinks []ResultSink
}

func (s *FanoutSink) WriteIfNew(offsetS int, text string) (bool, error) {
	isNew := false
	for i, sub := range s.Sinks {
		n, err := sub.WriteIfNew(offsetS, text)
		if err != nil {
			return isNew, err
		}
		if i == 0 {
			isNew = n
		}
	}
	return isNew, nil
}

func (s *FanoutSink) Close() error {
	var firstErr error
	for _, sub := range s.Sinks {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
