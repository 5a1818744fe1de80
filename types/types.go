package types

import "time"

// ---- Link state ----

// LinkState is the station-mode link lifecycle.
type LinkState uint8

const (
	LinkIdle LinkState = iota
	LinkConnecting
	LinkConnected
	LinkBackoff
)

func (s LinkState) String() string {
	switch s {
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkBackoff:
		return "backoff"
	default:
		return "idle"
	}
}

func (s LinkState) MarshalJSON() ([]byte, error) { return []byte(`"` + s.String() + `"`), nil }

// ---- Scan results ----

// ScanEntry is one visible network.
type ScanEntry struct {
	SSID string `json:"ssid"`
	RSSI int32  `json:"rssi"`
	Open bool   `json:"open"`
}

// ---- Sensor reading ----

// Reading is the most recent decoded serial line.
// Raw is always set once any line has been seen; Value only when HasValue.
type Reading struct {
	Raw        string
	Value      float64
	HasValue   bool
	CapturedAt time.Time
}

// Merge applies a freshly decoded line to the retained slot.
// An undecodable line updates Raw and CapturedAt but keeps the last value.
func (r *Reading) Merge(u Reading) {
	r.Raw = u.Raw
	r.CapturedAt = u.CapturedAt
	if u.HasValue {
		r.Value = u.Value
		r.HasValue = true
	}
}

// ---- Upload outcome ----

// UploadOutcome records the latest upload attempt.
// Code: 0 never attempted, <0 transport failure, >0 HTTP status.
type UploadOutcome struct {
	AttemptedAt time.Time
	Code        int
	Summary     string
	CompletedAt time.Time
}

// ---- Helpers ----

// UnixMs converts t to Unix milliseconds; the zero time maps to 0.
func UnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
