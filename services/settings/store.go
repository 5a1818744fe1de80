package settings

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"sensorbridge-go/x/kv"
	"sensorbridge-go/x/logx"
	"sensorbridge-go/x/strconvx"
	"sensorbridge-go/x/timex"
)

var (
	keySSID     = kv.Key{"config", "ssid"}
	keyPassword = kv.Key{"config", "password"}
	keyInterval = kv.Key{"config", "upl_ms"}
	keyToken    = kv.Key{"config", "upl_tok"}
)

// Store reads and writes Settings through a kv.Store.
type Store struct {
	kv           kv.Store
	log          *slog.Logger
	defaultToken string
}

func NewStore(s kv.Store, l *slog.Logger, defaultToken string) *Store {
	return &Store{kv: s, log: logx.Component(l, "settings"), defaultToken: defaultToken}
}

// Load returns the stored settings, clamped. Missing keys take their
// defaults. A read failure is returned alongside the defaults for the keys
// that could not be read, so the caller can always proceed.
func (st *Store) Load(ctx context.Context) (Settings, error) {
	s := Defaults(st.defaultToken)
	var errs []error

	get := func(k kv.Key) (string, bool) {
		b, err := st.kv.Get(ctx, k)
		if errors.Is(err, kv.ErrNotFound) {
			return "", false
		}
		if err != nil {
			errs = append(errs, err)
			return "", false
		}
		return string(b), true
	}

	if v, ok := get(keySSID); ok {
		s.SSID = v
	}
	if v, ok := get(keyPassword); ok {
		s.Password = v
	}
	if v, ok := get(keyInterval); ok {
		ms, err := strconvx.Atoi(v)
		if err != nil {
			st.log.Warn("settings:bad-interval", "value", v)
			ms = 0
		}
		s.UploadInterval = timex.FromMs(ms)
	}
	if v, ok := get(keyToken); ok {
		s.UploadToken = v
	}

	s = s.Clamp(st.defaultToken)
	return s, errors.Join(errs...)
}

// SaveCredentials stores the station credentials. An empty SSID clears both.
func (st *Store) SaveCredentials(ctx context.Context, ssid, password string) error {
	if ssid == "" {
		return errors.Join(st.kv.Delete(ctx, keySSID), st.kv.Delete(ctx, keyPassword))
	}
	return st.kv.BatchSet(ctx, []kv.Entry{
		{Key: keySSID, Value: []byte(ssid)},
		{Key: keyPassword, Value: []byte(password)},
	})
}

// SaveUpload stores the upload interval and token.
func (st *Store) SaveUpload(ctx context.Context, interval time.Duration, token string) error {
	return st.kv.BatchSet(ctx, []kv.Entry{
		{Key: keyInterval, Value: []byte(strconvx.FormatInt(timex.Ms(interval), 10))},
		{Key: keyToken, Value: []byte(token)},
	})
}
