// Package settings holds the persisted runtime settings: station
// credentials plus the upload interval and bearer token.
package settings

import (
	"strings"
	"time"

	"sensorbridge-go/errcode"
	"sensorbridge-go/x/mathx"
	"sensorbridge-go/x/strx"
	"sensorbridge-go/x/timex"
)

const (
	MinInterval     = time.Second
	MaxInterval     = 600 * time.Second
	DefaultInterval = 5 * time.Second

	MinPassword = 8
	MaxPassword = 63
	MaxToken    = 255
)

type Settings struct {
	SSID           string
	Password       string
	UploadInterval time.Duration
	UploadToken    string
}

// Defaults is what a device with an empty store runs with.
func Defaults(defaultToken string) Settings {
	return Settings{UploadInterval: DefaultInterval, UploadToken: NormalizeToken(defaultToken)}
}

// NormalizeToken trims tok, strips one leading "Bearer " and trims again,
// so the header can always be rebuilt as "Bearer " + token.
func NormalizeToken(tok string) string {
	tok = strings.TrimSpace(tok)
	tok = strings.TrimPrefix(tok, "Bearer ")
	return strings.TrimSpace(tok)
}

// Clamp repairs values loaded from storage: an interval outside
// [MinInterval, MaxInterval] becomes DefaultInterval and an empty token
// becomes the default token.
func (s Settings) Clamp(defaultToken string) Settings {
	if !mathx.Between(s.UploadInterval, MinInterval, MaxInterval) {
		s.UploadInterval = DefaultInterval
	}
	s.UploadToken = strx.Coalesce(NormalizeToken(s.UploadToken), NormalizeToken(defaultToken))
	return s
}

// ValidateCredentials checks a connect request and returns the trimmed SSID.
func ValidateCredentials(ssid, password string) (string, error) {
	ssid = strings.TrimSpace(ssid)
	if ssid == "" {
		return "", errcode.New(errcode.InvalidParams, "connect", "ssid must not be empty")
	}
	if n := len(password); n > 0 && n < MinPassword {
		return "", errcode.New(errcode.InvalidParams, "connect", "password must be at least 8 chars")
	}
	if len(password) > MaxPassword {
		return "", errcode.New(errcode.InvalidParams, "connect", "password must be at most 63 chars")
	}
	return ssid, nil
}

// ValidateUpload checks a settings update and returns the interval and the
// normalized token.
func ValidateUpload(intervalMs int64, token string) (time.Duration, string, error) {
	if !mathx.Between(intervalMs, timex.Ms(MinInterval), timex.Ms(MaxInterval)) {
		return 0, "", errcode.New(errcode.InvalidParams, "settings", "upload_interval_ms must be 1000..600000")
	}
	tok := NormalizeToken(token)
	if tok == "" || len(tok) > MaxToken {
		return 0, "", errcode.New(errcode.InvalidParams, "settings", "upload_auth_token length must be 1..255")
	}
	return timex.FromMs(intervalMs), tok, nil
}
