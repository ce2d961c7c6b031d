package scanner

import (
	"runtime"

	"song-scanner/utils"
)

// Config is the explicit tuning surface of one scan. Values outside
// the documented ranges are clamped by Normalized; zero values take
// the defaults, except MinAPIIntervalS where zero is meaningful and
// disables the base spacing.
type Config struct {
	IntervalS            int     // seconds between sampling instants
	SampleDurationS      int     // extracted segment length per instant
	SignatureDurationS   int     // recognition window length, <= sample
	Workers              int     // concurrent sample processors
	MinAPIIntervalS      int     // base minimum spacing between API calls
	RecognizeTimeoutS    int     // per-call hard timeout
	MaxWindowsPerSample  int     // ranked windows tried per sample
	WindowStepS          int     // ranking stride
	SilenceThresholdDBFS float64 // windows quieter than this are skipped
	SampleRate           int     // extraction sample rate
	Channels             int     // extraction channel count
	DebugAudio           bool    // log per-sample loudness diagnostics
}

// DefaultConfig returns the standard scan parameters.
func DefaultConfig() Config {
	return Config{
		IntervalS:            30,
		SampleDurationS:      15,
		SignatureDurationS:   12,
		Workers:              runtime.NumCPU(),
		MinAPIIntervalS:      10,
		RecognizeTimeoutS:    60,
		MaxWindowsPerSample:  3,
		WindowStepS:          1,
		SilenceThresholdDBFS: -55.0,
		SampleRate:           16000,
		Channels:             1,
	}
}

// ConfigFromEnv returns DefaultConfig overridden by SCANNER_*
// environment variables.
func ConfigFromEnv() Config {
	d := DefaultConfig()
	return Config{
		IntervalS:            utils.GetEnvInt("SCANNER_INTERVAL_S", d.IntervalS),
		SampleDurationS:      utils.GetEnvInt("SCANNER_SAMPLE_SECONDS", d.SampleDurationS),
		SignatureDurationS:   utils.GetEnvInt("SCANNER_SIGNATURE_SECONDS", d.SignatureDurationS),
		Workers:              utils.GetEnvInt("SCANNER_WORKERS", d.Workers),
		MinAPIIntervalS:      utils.GetEnvInt("SCANNER_MIN_API_INTERVAL_S", d.MinAPIIntervalS),
		RecognizeTimeoutS:    utils.GetEnvInt("SCANNER_RECOGNIZE_TIMEOUT_S", d.RecognizeTimeoutS),
		MaxWindowsPerSample:  utils.GetEnvInt("SCANNER_MAX_WINDOWS_PER_SAMPLE", d.MaxWindowsPerSample),
		WindowStepS:          utils.GetEnvInt("SCANNER_WINDOW_STEP_S", d.WindowStepS),
		SilenceThresholdDBFS: utils.GetEnvFloat("SCANNER_SILENCE_DBFS_THRESHOLD", d.SilenceThresholdDBFS),
		SampleRate:           utils.GetEnvInt("SCANNER_SAMPLE_RATE", d.SampleRate),
		Channels:             utils.GetEnvInt("SCANNER_CHANNELS", d.Channels),
		DebugAudio:           utils.GetEnvBool("SCANNER_DEBUG_AUDIO", d.DebugAudio),
	}
}

// Normalized clamps every field into its valid range. The signature
// duration can never exceed the sample duration.
func (c Config) Normalized() Config {
	d := DefaultConfig()

	c.IntervalS = clampInt(orInt(c.IntervalS, d.IntervalS), 1, 24*60*60)
	c.SampleDurationS = clampInt(orInt(c.SampleDurationS, d.SampleDurationS), 5, 60)
	c.SignatureDurationS = clampInt(orInt(c.SignatureDurationS, d.SignatureDurationS), 5, 60)
	if c.SignatureDurationS > c.SampleDurationS {
		c.SignatureDurationS = c.SampleDurationS
	}
	c.Workers = clampInt(orInt(c.Workers, d.Workers), 1, 32)
	c.MinAPIIntervalS = clampInt(c.MinAPIIntervalS, 0, 60)
	c.RecognizeTimeoutS = clampInt(orInt(c.RecognizeTimeoutS, d.RecognizeTimeoutS), 10, 600)
	c.MaxWindowsPerSample = clampInt(orInt(c.MaxWindowsPerSample, d.MaxWindowsPerSample), 1, 6)
	c.WindowStepS = clampInt(orInt(c.WindowStepS, d.WindowStepS), 1, 60)
	c.SilenceThresholdDBFS = clampFloat(orFloat(c.SilenceThresholdDBFS, d.SilenceThresholdDBFS), -100.0, 0.0)
	c.SampleRate = orInt(c.SampleRate, d.SampleRate)
	c.Channels = clampInt(orInt(c.Channels, d.Channels), 1, 2)

	return c
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func orInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func orFloat(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}
