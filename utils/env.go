package utils

import (
	"fmt"
	"os"
	"strconv"
)

// GetEnv returns the value of an environment variable, or the fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// GetEnvInt returns an environment variable parsed as an int, or the
// fallback if the variable is unset or unparsable.
func GetEnvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// GetEnvFloat returns an environment variable parsed as a float64, or
// the fallback if the variable is unset or unparsable.
func GetEnvFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

// GetEnvBool returns an environment variable parsed as a bool, or the
// fallback if the variable is unset or unparsable.
func GetEnvBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

// CreateFolder creates a directory (and parents) if it doesn't exist.
func CreateFolder(folderPath string) error {
	if err := os.MkdirAll(folderPath, 0755); err != nil {
		return fmt.Errorf("failed to create folder %q: %v", folderPath, err)
	}
	return nil
}
