package scanner

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTextSinkDeduplicates(t *testing.T) {
	var buf bytes.Buffer
	sink := NewStreamSink(&buf)

	isNew, err := sink.WriteIfNew(90, "Artist - Song")
	if err != nil || !isNew {
		t.Fatalf("first write: new=%v err=%v", isNew, err)
	}
	isNew, err = sink.WriteIfNew(120, "Artist - Song")
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if isNew {
		t.Error("duplicate track reported as new")
	}

	got := buf.String()
	if got != "00:01:30\tArtist - Song\n" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestTextSinkKeepsFirstSeenOrder(t *testing.T) {
	var buf bytes.Buffer
	sink := NewStreamSink(&buf)

	tracks := []struct {
		offset int
		text   string
	}{
		{0, "A - One"},
		{30, "B - Two"},
		{60, "A - One"},
		{90, "C - Three"},
	}
	for _, tr := range tracks {
		if _, err := sink.WriteIfNew(tr.offset, tr.text); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for i, want := range []string{"A - One", "B - Two", "C - Three"} {
		if !strings.HasSuffix(lines[i], want) {
			t.Errorf("line %d: expected %q, got %q", i, want, lines[i])
		}
	}
}

func TestTextSinkFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.txt")
	sink, err := NewTextSink(path)
	if err != nil {
		t.Fatalf("creating sink: %v", err)
	}

	if _, err := sink.WriteIfNew(3661, "Artist - Song"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading results: %v", err)
	}
	if string(data) != "01:01:01\tArtist - Song\n" {
		t.Errorf("unexpected file contents %q", string(data))
	}

	if _, err := sink.WriteIfNew(0, "X - Y"); err == nil {
		t.Error("expected error writing to a closed sink")
	}
}

func TestFanoutSinkForwardsToAll(t *testing.T) {
	var a, b bytes.Buffer
	fan := &FanoutSink{Sinks: []ResultSink{NewStreamSink(&a), NewStreamSink(&b)}}

	isNew, err := fan.WriteIfNew(10, "Artist - Song")
	if err != nil || !isNew {
		t.Fatalf("fanout write: new=%v err=%v", isNew, err)
	}
	if a.String() != b.String() {
		t.Errorf("sinks diverged: %q vs %q", a.String(), b.String())
	}

	if isNew, _ := fan.WriteIfNew(20, "Artist - Song"); isNew {
		t.Error("duplicate reported as new through fanout")
	}
}
