package shazam

import (
	"time"

	"song-scanner/utils"
)

// ClientConfig controls the HTTP surface of the recognition client:
// where requests go and which headers identify them.
type ClientConfig struct {
	Endpoint        string // recognition API URL
	Language        string // locale sent to the API
	EndpointCountry string // country routing hint
	AcceptLanguage  string // Accept-Language header; Language when empty
	UserAgent       string
	Platform        string // X-Platform header
	AppVersion      string // X-AppVersion header
	TimeZone        string
	Timeout         time.Duration // per-call hard timeout, clamped [10s, 600s]
}

// DefaultClientConfig returns client parameters resolved from the
// environment with sane fallbacks.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Endpoint:        utils.GetEnv("SCANNER_API_URL", "https://amp.shazam.com/discovery/v5/recognize"),
		Language:        utils.GetEnv("SCANNER_API_LANGUAGE", "en-US"),
		EndpointCountry: utils.GetEnv("SCANNER_API_COUNTRY", "US"),
		AcceptLanguage:  utils.GetEnv("SCANNER_API_ACCEPT_LANGUAGE", ""),
		UserAgent: utils.GetEnv("SCANNER_API_USER_AGENT",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "+
				"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"),
		Platform:   utils.GetEnv("SCANNER_API_PLATFORM", "IPHONE"),
		AppVersion: utils.GetEnv("SCANNER_API_APP_VERSION", "14.1.0"),
		TimeZone:   utils.GetEnv("SCANNER_API_TIME_ZONE", "UTC"),
		Timeout:    time.Duration(utils.GetEnvInt("SCANNER_RECOGNIZE_TIMEOUT_S", 60)) * time.Second,
	}
}

func (c ClientConfig) normalized() ClientConfig {
	if c.Language == "" {
		c.Language = "en-US"
	}
	if c.EndpointCountry == "" {
		c.EndpointCountry = "US"
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = c.Language
	}
	if c.Timeout < 10*time.Second {
		c.Timeout = 10 * time.Second
	}
	if c.Timeout > 600*time.Second {
		c.Timeout = 600 * time.Second
	}
	return c
}
