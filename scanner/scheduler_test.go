package scanner

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"song-scanner/shazam"
	"song-scanner/wav"
)

// knownSource serves the same segment at every offset and reports a
// fixed duration.
type knownSource struct {
	seg       *wav.Segment
	durationS float64
}

func (s *knownSource) Extract(_ context.Context, _, _ int) (*wav.Segment, error) {
	return s.seg, nil
}

func (s *knownSource) Duration() (float64, bool) { return s.durationS, true }

// boundedSource serves n segments then reports end of stream, with an
// unknown duration.
type boundedSource struct {
	mu    sync.Mutex
	seg   *wav.Segment
	left  int
	calls int
}

func (s *boundedSource) Extract(_ context.Context, _, _ int) (*wav.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.left <= 0 {
		return nil, wav.ErrEndOfStream
	}
	s.left--
	return s.seg, nil
}

func (s *boundedSource) Duration() (float64, bool) { return 0, false }

type staticRecognizer struct {
	result shazam.Result
	err    error
}

func (r *staticRecognizer) Recognize(_ context.Context, _ []byte) (shazam.Result, error) {
	return r.result, r.err
}

func testSchedulerConfig(workers int) Config {
	cfg := testProcessorConfig()
	cfg.Workers = workers
	return cfg
}

func drainEvents(emitter *Emitter) *sync.WaitGroup {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range emitter.Events() {
		}
	}()
	return &wg
}

func TestSchedulerCountsEverySample(t *testing.T) {
	src := &knownSource{
		seg:       testSegment([]int16{0, 10000, 10000, 0, 0}),
		durationS: 300,
	}
	factory := func() Recognizer {
		return &staticRecognizer{result: shazam.Result{Matched: true, Title: "Song", Artist: "Artist"}}
	}

	emitter := NewEmitter(256)
	wg := drainEvents(emitter)

	var buf bytes.Buffer
	sink := NewStreamSink(&buf)
	sched := NewScheduler(testSchedulerConfig(4), factory, emitter, nil)

	stats, err := sched.Run(context.Background(), src, sink)
	wg.Wait()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Total != 10 || !stats.TotalKnown {
		t.Errorf("expected 10 known samples, got %d (known=%v)", stats.Total, stats.TotalKnown)
	}
	if stats.Done != 10 {
		t.Errorf("expected all 10 samples done, got %d", stats.Done)
	}
	if got := stats.Matches + stats.NoMatch + stats.Errors; got != stats.Done {
		t.Errorf("outcome counters %d do not add up to done %d", got, stats.Done)
	}
	if stats.Matches != 10 {
		t.Errorf("expected 10 matches, got %d", stats.Matches)
	}

	// the same track across samples yields a single output line
	lines := strings.Count(buf.String(), "\n")
	if lines != 1 {
		t.Errorf("expected 1 deduplicated line, got %d:\n%s", lines, buf.String())
	}
}

func TestSchedulerSilentFileNeverCallsNetwork(t *testing.T) {
	src := &knownSource{
		seg:       testSegment([]int16{0, 0, 0, 0, 0}),
		durationS: 150,
	}
	rec := &fakeRecognizer{results: []shazam.Result{{}}, errs: []error{nil}}
	factory := func() Recognizer { return rec }

	emitter := NewEmitter(256)
	wg := drainEvents(emitter)

	stats, err := NewScheduler(testSchedulerConfig(1), factory, emitter, nil).
		Run(context.Background(), src, NewStreamSink(&bytes.Buffer{}))
	wg.Wait()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.NoMatch != 5 || stats.Done != 5 {
		t.Errorf("expected 5 silent no-matches, got done=%d noMatch=%d", stats.Done, stats.NoMatch)
	}
	if rec.calls != 0 {
		t.Errorf("silent scan must not hit the network, got %d calls", rec.calls)
	}
}

func TestSchedulerSequentialUnknownDuration(t *testing.T) {
	src := &boundedSource{
		seg:  testSegment([]int16{0, 10000, 10000, 0, 0}),
		left: 3,
	}
	factory := func() Recognizer {
		return &staticRecognizer{result: shazam.Result{Matched: true, Title: "Song", Artist: "Artist"}}
	}

	emitter := NewEmitter(256)
	wg := drainEvents(emitter)

	stats, err := NewScheduler(testSchedulerConfig(4), factory, emitter, nil).
		Run(context.Background(), src, NewStreamSink(&bytes.Buffer{}))
	wg.Wait()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Done != 3 {
		t.Errorf("expected 3 samples before end of stream, got %d", stats.Done)
	}
	if src.calls != 4 {
		t.Errorf("expected sequential extraction (3 samples + eof), got %d calls", src.calls)
	}
}

// trackingSource records the peak number of concurrent Extract calls.
type trackingSource struct {
	seg       *wav.Segment
	durationS float64
	inflight  int32
	peak      int32
}

func (s *trackingSource) Extract(_ context.Context, _, _ int) (*wav.Segment, error) {
	n := atomic.AddInt32(&s.inflight, 1)
	for {
		p := atomic.LoadInt32(&s.peak)
		if n <= p || atomic.CompareAndSwapInt32(&s.peak, p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(&s.inflight, -1)
	return s.seg, nil
}

func (s *trackingSource) Duration() (float64, bool) { return s.durationS, true }

func TestSchedulerBoundsInflightWork(t *testing.T) {
	const workers = 4
	src := &trackingSource{
		seg:       testSegment([]int16{0, 10000, 10000, 0, 0}),
		durationS: 3000, // 100 samples
	}
	factory := func() Recognizer {
		return &staticRecognizer{result: shazam.Result{Matched: true, Title: "Song", Artist: "Artist"}}
	}

	emitter := NewEmitter(256)
	wg := drainEvents(emitter)

	stats, err := NewScheduler(testSchedulerConfig(workers), factory, emitter, nil).
		Run(context.Background(), src, NewStreamSink(&bytes.Buffer{}))
	wg.Wait()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Done != 100 {
		t.Fatalf("expected 100 samples done, got %d", stats.Done)
	}

	bound := int32(workers * 3)
	if bound < 4 {
		bound = 4
	}
	if src.peak > bound {
		t.Errorf("concurrent extraction peaked at %d, exceeding the %d in-flight bound", src.peak, bound)
	}
	if src.peak < 2 {
		t.Errorf("expected concurrent extraction with %d workers, peak was %d", workers, src.peak)
	}
}

func TestSchedulerPerSampleErrorsDoNotAbort(t *testing.T) {
	src := &knownSource{
		seg:       testSegment([]int16{0, 10000, 10000, 0, 0}),
		durationS: 150,
	}
	factory := func() Recognizer {
		return &staticRecognizer{err: &shazam.RequestError{Status: 400, Detail: "bad signature"}}
	}

	emitter := NewEmitter(256)
	wg := drainEvents(emitter)

	stats, err := NewScheduler(testSchedulerConfig(2), factory, emitter, nil).
		Run(context.Background(), src, NewStreamSink(&bytes.Buffer{}))
	wg.Wait()

	if err != nil {
		t.Fatalf("per-sample errors must not abort the scan, got %v", err)
	}
	if stats.Done != 5 || stats.Errors != 5 {
		t.Errorf("expected 5 done with 5 errors recorded, got done=%d errors=%d", stats.Done, stats.Errors)
	}
}

func TestSchedulerMetaEventCarriesPaths(t *testing.T) {
	src := &knownSource{
		seg:       testSegment([]int16{0, 0, 0, 0, 0}),
		durationS: 30,
	}
	factory := func() Recognizer { return &staticRecognizer{} }

	emitter := NewEmitter(256)
	var meta Event
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range emitter.Events() {
			if ev.Kind == EventMeta {
				meta = ev
			}
		}
	}()

	sched := NewScheduler(testSchedulerConfig(1), factory, emitter, nil)
	sched.SourcePath = "/tmp/show.aac"
	sched.OutputPath = "/tmp/show.txt"
	if _, err := sched.Run(context.Background(), src, NewStreamSink(&bytes.Buffer{})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wg.Wait()

	if meta.SourcePath != "/tmp/show.aac" || meta.OutputPath != "/tmp/show.txt" {
		t.Errorf("meta event missing paths: source=%q output=%q", meta.SourcePath, meta.OutputPath)
	}
}

func TestSchedulerStops(t *testing.T) {
	src := &knownSource{
		seg:       testSegment([]int16{0, 10000, 10000, 0, 0}),
		durationS: 30000,
	}
	factory := func() Recognizer {
		return &staticRecognizer{err: &shazam.TransientError{Status: 503}}
	}

	emitter := NewEmitter(256)
	wg := drainEvents(emitter)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	done := make(chan struct{})
	var stats ScanStats
	var err error
	go func() {
		stats, err = NewScheduler(testSchedulerConfig(4), factory, emitter, nil).
			Run(ctx, src, NewStreamSink(&bytes.Buffer{}))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
	wg.Wait()

	if err == nil {
		t.Error("expected a cancellation error")
	}
	if stats.Done >= 1000 {
		t.Errorf("stop did not bound the scan, %d samples done", stats.Done)
	}
}
