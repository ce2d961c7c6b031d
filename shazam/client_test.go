package shazam

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	client := NewClient(ClientConfig{
		Endpoint: srv.URL,
		Timeout:  10 * time.Second,
	})
	return client, srv
}

func TestRecognizeMatch(t *testing.T) {
	var gotContentType, gotPlatform string
	client, srv := testClient(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotPlatform = r.Header.Get("X-Platform")
		w.Write([]byte(`{"track":{"title":"Bohemian Rhapsody","subtitle":"Queen"}}`))
	})
	defer srv.Close()

	res, err := client.Recognize(context.Background(), []byte("wav"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Matched {
		t.Fatal("expected a match")
	}
	if res.Display() != "Queen - Bohemian Rhapsody" {
		t.Errorf("unexpected display %q", res.Display())
	}
	if gotContentType != "audio/wav" {
		t.Errorf("expected audio/wav content type, got %q", gotContentType)
	}
	if gotPlatform == "" {
		t.Error("expected platform header to be set")
	}
}

func TestRecognizeNoMatch(t *testing.T) {
	client, srv := testClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"matches":[],"timestamp":123}`))
	})
	defer srv.Close()

	res, err := client.Recognize(context.Background(), []byte("wav"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Matched {
		t.Error("expected no match")
	}
}

func TestRecognizeUntitledTrackIsNoMatch(t *testing.T) {
	client, srv := testClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"track":{"subtitle":"Someone"}}`))
	})
	defer srv.Close()

	res, err := client.Recognize(context.Background(), []byte("wav"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Matched {
		t.Error("track without a title must not count as a match")
	}
}

func TestRecognizeRateLimited(t *testing.T) {
	client, srv := testClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "17")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	defer srv.Close()

	_, err := client.Recognize(context.Background(), []byte("wav"))

	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitError, got %T: %v", err, err)
	}
	if rateErr.RetryAfterS != 17 {
		t.Errorf("expected Retry-After 17, got %d", rateErr.RetryAfterS)
	}
}

func TestRecognizeRateLimitedWithoutHint(t *testing.T) {
	client, srv := testClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	defer srv.Close()

	_, err := client.Recognize(context.Background(), []byte("wav"))

	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitError, got %T: %v", err, err)
	}
	if rateErr.RetryAfterS != 0 {
		t.Errorf("expected no retry hint, got %d", rateErr.RetryAfterS)
	}
}

func TestRecognizeServerError(t *testing.T) {
	client, srv := testClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer srv.Close()

	_, err := client.Recognize(context.Background(), []byte("wav"))

	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientError, got %T: %v", err, err)
	}
	if transient.Status != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", transient.Status)
	}
}

func TestRecognizeBadRequestCarriesDetail(t *testing.T) {
	client, srv := testClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"signature too short"}}`))
	})
	defer srv.Close()

	_, err := client.Recognize(context.Background(), []byte("wav"))

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %T: %v", err, err)
	}
	if reqErr.Status != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", reqErr.Status)
	}
	if reqErr.Detail != "signature too short" {
		t.Errorf("expected error detail, got %q", reqErr.Detail)
	}
}

func TestRecognizeTruncatedJSONIsTransient(t *testing.T) {
	client, srv := testClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"track":{"title":"Boh`))
	})
	defer srv.Close()

	_, err := client.Recognize(context.Background(), []byte("wav"))

	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientError for truncated json, got %T: %v", err, err)
	}
}

func TestRecognizeConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	client := NewClient(ClientConfig{Endpoint: srv.URL, Timeout: 10 * time.Second})
	_, err := client.Recognize(context.Background(), []byte("wav"))

	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientError, got %T: %v", err, err)
	}
}

func TestErrorDetailFallbacks(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"nested message", `{"error":{"message":"nope"}}`, "nope"},
		{"nested detail", `{"error":{"detail":"bad key"}}`, "bad key"},
		{"top level message", `{"message":"denied"}`, "denied"},
		{"no detail", `{"status":"error"}`, ""},
		{"not json", `<html>oops</html>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorDetail([]byte(tt.body)); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"30", 30},
		{" 5 ", 5},
		{"", 0},
		{"-3", 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
