package wav

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"song-scanner/utils"
)

// ErrEndOfStream is returned by ExtractSegment when the requested
// offset lies past the end of the source. It is distinct from a decode
// error: the source is fine, there is just no more audio.
var ErrEndOfStream = errors.New("end of audio stream")

// ErrFFmpegNotFound indicates neither SCANNER_FFMPEG nor $PATH provide
// an ffmpeg binary.
var ErrFFmpegNotFound = errors.New("ffmpeg not found (SCANNER_FFMPEG or $PATH)")

// RequireFFmpeg resolves the ffmpeg and ffprobe binaries. ffprobe may
// be empty; callers then treat the source duration as unknown.
func RequireFFmpeg() (ffmpeg string, ffprobe string, err error) {
	ffmpeg = utils.GetEnv("SCANNER_FFMPEG", "")
	if ffmpeg == "" {
		ffmpeg, _ = exec.LookPath("ffmpeg")
	}
	if ffmpeg == "" {
		return "", "", ErrFFmpegNotFound
	}

	ffprobe = utils.GetEnv("SCANNER_FFPROBE", "")
	if ffprobe == "" {
		ffprobe, _ = exec.LookPath("ffprobe")
	}
	return ffmpeg, ffprobe, nil
}

// candidateInputFormats lists the demuxer hypotheses to try for a
// path, most likely first. Raw AAC family files are frequently
// misdetected, so explicit formats are tried before or after the
// auto-detect pass depending on the extension.
func candidateInputFormats(path string) []string {
	var candidates []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".loas":
		candidates = []string{"loas", ""}
	case ".latm":
		candidates = []string{"latm", "loas", ""}
	case ".aac":
		candidates = []string{"", "aac", "loas", "latm"}
	case ".ts":
		candidates = []string{"", "mpegts"}
	default:
		candidates = []string{""}
	}

	seen := make(map[string]bool, len(candidates))
	ordered := candidates[:0]
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		ordered = append(ordered, c)
	}
	return ordered
}

func shouldTryBigProbe(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".ts"
}

func shouldTryPostSeek(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".aac", ".loas", ".latm":
		return true
	}
	return false
}

// extractTimeout scales with the requested duration to tolerate slow
// seeks into large files without hanging forever.
func extractTimeout(durationS int) time.Duration {
	timeout := time.Duration(durationS)*10*time.Second + 60*time.Second
	if timeout < 60*time.Second {
		timeout = 60 * time.Second
	}
	if timeout > 15*time.Minute {
		timeout = 15 * time.Minute
	}
	return timeout
}

// ProbeDuration returns the duration of an audio file in seconds via
// ffprobe, trying each input-format hypothesis. Returns 0, false when
// the duration cannot be determined (the scan then runs open-ended).
func ProbeDuration(path string) (float64, bool) {
	_, ffprobe, err := RequireFFmpeg()
	if err != nil || ffprobe == "" {
		return 0, false
	}

	for _, format := range candidateInputFormats(path) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		args := []string{
			"-v", "error",
			"-show_entries", "format=duration",
			"-of", "default=noprint_wrappers=1:nokey=1",
		}
		if format != "" {
			args = append(args, "-f", format)
		}
		args = append(args, path)

		out, err := exec.CommandContext(ctx, ffprobe, args...).Output()
		cancel()
		if err != nil {
			continue
		}

		duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
		if err != nil || duration <= 0 {
			continue
		}
		return duration, true
	}

	return 0, false
}

// ExtractSegment decodes a [startS, startS+durationS) span of any
// audio file into a PCM16 Segment via ffmpeg, trying input-format,
// probe-size, and seek-mode hypotheses until one yields audio. Returns
// ErrEndOfStream when the offset is past the end of the source.
func ExtractSegment(ctx context.Context, path string, startS, durationS, sampleRate, channels int) (*Segment, error) {
	ffmpeg, _, err := RequireFFmpeg()
	if err != nil {
		return nil, err
	}

	type probeOption struct{ analyzeduration, probesize string }
	probes := []*probeOption{nil}
	if shouldTryBigProbe(path) {
		probes = append(probes, &probeOption{"20M", "20M"})
	}

	seekModes := []string{"pre"}
	if shouldTryPostSeek(path) {
		seekModes = append(seekModes, "post")
	}

	var lastErr error
	for _, format := range candidateInputFormats(path) {
		for _, probe := range probes {
			for _, seekMode := range seekModes {
				args := []string{
					"-hide_banner",
					"-loglevel", "error",
					"-nostdin",
					"-fflags", "+discardcorrupt",
					"-err_detect", "ignore_err",
				}
				if probe != nil {
					args = append(args, "-analyzeduration", probe.analyzeduration, "-probesize", probe.probesize)
				}
				if seekMode == "pre" {
					args = append(args, "-ss", strconv.Itoa(startS), "-t", strconv.Itoa(durationS))
				}
				if format != "" {
					args = append(args, "-f", format)
				}
				args = append(args, "-i", path)
				if seekMode == "post" {
					args = append(args, "-ss", strconv.Itoa(startS), "-t", strconv.Itoa(durationS))
				}
				args = append(args,
					"-vn", "-sn", "-dn",
					"-map", "0:a:0",
					"-ac", strconv.Itoa(channels),
					"-ar", strconv.Itoa(sampleRate),
					"-c:a", "pcm_s16le",
					"-f", "s16le",
					"pipe:1",
				)

				cctx, cancel := context.WithTimeout(ctx, extractTimeout(durationS))
				cmd := exec.CommandContext(cctx, ffmpeg, args...)
				var stdout, stderr bytes.Buffer
				cmd.Stdout = &stdout
				cmd.Stderr = &stderr

				err := cmd.Run()
				cancel()
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				if err != nil {
					detail := strings.TrimSpace(stderr.String())
					if detail == "" {
						detail = err.Error()
					}
					lastErr = fmt.Errorf("ffmpeg failed: %s", detail)
					continue
				}

				seg := SegmentFromRaw(stdout.Bytes(), sampleRate, channels)
				if seg == nil {
					// decoded fine but produced no frames: past EOF
					return nil, ErrEndOfStream
				}
				return seg, nil
			}
		}
	}

	if lastErr == nil {
		lastErr = errors.New("ffmpeg failed")
	}
	return nil, lastErr
}
