package types

import "time"

// LinkStatus is the connection manager's read-only view.
type LinkStatus struct {
	State          LinkState
	SSID           string
	HasCredentials bool
	LastAttemptAt  time.Time
	LastConnected  time.Time
	ConnectElapsed time.Duration // zero unless connecting
	NextAttemptIn  time.Duration // zero unless in backoff
	Backoff        time.Duration
	LastError      string
	LastReason     int32
	RSSI           int32
	Addr           string
}

// Status is the document served on /api/status and pushed on every
// significant event and heartbeat (retained on the "status" topic).
type Status struct {
	Reason string `json:"reason"`
	BootID string `json:"boot_id"`

	APSSID string `json:"ap_ssid"`
	APIP   string `json:"ap_ip"`

	STASSID              string `json:"sta_ssid"`
	STAConnected         bool   `json:"sta_connected"`
	STAHasSavedCreds     bool   `json:"sta_has_saved_credentials"`
	STAConnecting        bool   `json:"sta_connecting"`
	STAIP                string `json:"sta_ip"`
	RSSI                 int32  `json:"rssi"`
	WifiState            string `json:"wifi_state"`
	WifiLastAttemptMs    int64  `json:"wifi_last_attempt_ms"`
	WifiLastConnectedMs  int64  `json:"wifi_last_connected_ms"`
	WifiLastError        string `json:"wifi_last_error"`
	WifiLastDisconnect   int32  `json:"wifi_last_disconnect_reason"`
	WifiBackoffMs        int64  `json:"wifi_backoff_ms"`
	WifiNextAttemptInMs  int64  `json:"wifi_next_attempt_in_ms"`
	WifiConnectElapsedMs int64  `json:"wifi_connect_elapsed_ms"`

	WifiScanInProgress  bool   `json:"wifi_scan_in_progress"`
	WifiScanLastMs      int64  `json:"wifi_scan_last_ms"`
	WifiScanResultCount int    `json:"wifi_scan_result_count"`
	WifiScanLastError   string `json:"wifi_scan_last_error,omitempty"`

	UptimeSeconds int64 `json:"uptime_seconds"`

	WeightRaw        string  `json:"weight_raw"`
	WeightValue      float64 `json:"weight_value"`
	WeightAvailable  bool    `json:"weight_available"`
	WeightLastReadMs int64   `json:"weight_last_read_ms"`

	UploadIntervalMs      uint32 `json:"upload_interval_ms"`
	UploadTokenConfigured bool   `json:"upload_auth_token_configured"`
	LastUploadAttemptMs   int64  `json:"weight_last_attempt_ms"`
	LastUploadMs          int64  `json:"weight_last_upload_ms"`
	LastUploadCode        int    `json:"weight_last_upload_code"`
	LastUploadResponse    string `json:"weight_last_upload_response"`
}
