package shazam

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/tidwall/gjson"
)

// Result is the outcome of one recognition call that completed at the
// HTTP level: either a confirmed track or an explicit no-match.
type Result struct {
	Matched bool
	Title   string
	Artist  string
}

// Display returns the one-line form used for result logs and dedup.
func (r Result) Display() string {
	return fmt.Sprintf("%s - %s", r.Artist, r.Title)
}

// RateLimitError signals the service asked us to back off (HTTP 429 or
// an equivalent overload marker). RetryAfterS is 0 when the service
// gave no hint.
type RateLimitError struct {
	RetryAfterS int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfterS > 0 {
		return fmt.Sprintf("rate limited (retry after %ds)", e.RetryAfterS)
	}
	return "rate limited"
}

// TransientError marks a failure worth retrying: no response at all,
// a 5xx status, or an unparsable payload.
type TransientError struct {
	Status int // 0 when no response was received
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("transient recognition failure (HTTP %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("transient recognition failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RequestError marks a definitive per-call failure (bad request, auth)
// that retrying will not fix.
type RequestError struct {
	Status int
	Detail string
}

func (e *RequestError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// Client performs recognition lookups against the remote fingerprint
// matching API. One Client is owned by one scan worker and reused for
// the worker's lifetime.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

// NewClient builds a recognition client from cfg.
func NewClient(cfg ClientConfig) *Client {
	cfg = cfg.normalized()
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Recognize submits one PCM16 WAV window to the recognition API and
// classifies the outcome. Errors are typed for the caller's retry
// policy: *RateLimitError, *TransientError, or *RequestError.
func (c *Client) Recognize(ctx context.Context, wavBytes []byte) (Result, error) {
	url := fmt.Sprintf("%s?language=%s&country=%s", c.cfg.Endpoint, c.cfg.Language, c.cfg.EndpointCountry)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(wavBytes))
	if err != nil {
		return Result{}, &RequestError{Detail: err.Error()}
	}

	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", c.cfg.AcceptLanguage)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("X-Platform", c.cfg.Platform)
	req.Header.Set("X-AppVersion", c.cfg.AppVersion)
	req.Header.Set("X-Time-Zone", c.cfg.TimeZone)

	resp, err := c.http.Do(req)
	if err != nil {
		// some proxies surface overload as a transport error; the
		// text match is a best-effort fallback, status is primary
		if looksRateLimited(err.Error()) {
			return Result{}, &RateLimitError{}
		}
		return Result{}, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Result{}, &TransientError{Status: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Result{}, &RateLimitError{RetryAfterS: parseRetryAfter(resp.Header.Get("Retry-After"))}

	case resp.StatusCode >= 500:
		return Result{}, &TransientError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("server error: %s", strings.TrimSpace(string(body))),
		}

	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Result{}, &RequestError{Status: resp.StatusCode, Detail: errorDetail(body)}
	}

	return parsePayload(body)
}

// parsePayload extracts the match from a 2xx response body. A body
// that is not valid JSON counts as transient: the service sometimes
// returns truncated payloads under load.
func parsePayload(body []byte) (Result, error) {
	if !gjson.ValidBytes(body) {
		return Result{}, &TransientError{Err: fmt.Errorf("failed to decode json response (%d bytes)", len(body))}
	}

	payload := gjson.ParseBytes(body)

	track := payload.Get("track")
	if !track.Exists() {
		if matches := payload.Get("matches"); matches.Exists() && len(matches.Array()) == 0 {
			return Result{}, nil
		}
		return Result{}, nil
	}

	title := track.Get("title").String()
	artist := track.Get("subtitle").String()
	if title == "" {
		return Result{}, nil
	}

	return Result{Matched: true, Title: title, Artist: artist}, nil
}

// errorDetail pulls a human-readable message out of a non-2xx body
// without unmarshalling the whole payload.
func errorDetail(body []byte) string {
	if msg, err := jsonparser.GetString(body, "error", "message"); err == nil && msg != "" {
		return msg
	}
	if msg, err := jsonparser.GetString(body, "error", "detail"); err == nil && msg != "" {
		return msg
	}
	if msg, err := jsonparser.GetString(body, "message"); err == nil && msg != "" {
		return msg
	}
	return ""
}

func parseRetryAfter(value string) int {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds <= 0 {
		return 0
	}
	return seconds
}

func looksRateLimited(message string) bool {
	lowered := strings.ToLower(message)
	return strings.Contains(lowered, "429") || strings.Contains(lowered, "too many requests")
}
