package core

import (
	"time"

	"sensorbridge-go/errcode"
	"sensorbridge-go/types"
	"sensorbridge-go/x/timex"
)

func (r *Runtime) buildStatus(now time.Time) types.Status {
	ls := r.link.Status(now)
	out := r.up.Outcome()

	st := types.Status{
		BootID: r.opt.BootID,
		APSSID: r.opt.APSSID,
		APIP:   r.opt.APIP,

		STASSID:              ls.SSID,
		STAConnected:         ls.State == types.LinkConnected,
		STAHasSavedCreds:     ls.HasCredentials,
		STAConnecting:        ls.State == types.LinkConnecting,
		STAIP:                ls.Addr,
		RSSI:                 ls.RSSI,
		WifiState:            ls.State.String(),
		WifiLastAttemptMs:    types.UnixMs(ls.LastAttemptAt),
		WifiLastConnectedMs:  types.UnixMs(ls.LastConnected),
		WifiLastError:        ls.LastError,
		WifiLastDisconnect:   ls.LastReason,
		WifiBackoffMs:        timex.Ms(ls.Backoff),
		WifiNextAttemptInMs:  timex.Ms(ls.NextAttemptIn),
		WifiConnectElapsedMs: timex.Ms(ls.ConnectElapsed),

		WifiScanInProgress:  r.scan.InProgress(),
		WifiScanLastMs:      types.UnixMs(r.scan.LastCompletedAt()),
		WifiScanResultCount: r.scan.Len(),

		UptimeSeconds: int64(timex.Since(now, r.bootAt) / time.Second),

		WeightRaw:        r.reading.Raw,
		WeightAvailable:  r.reading.HasValue,
		WeightLastReadMs: types.UnixMs(r.reading.CapturedAt),

		UploadIntervalMs:      uint32(timex.Ms(r.up.Interval())),
		UploadTokenConfigured: r.up.Token() != "",
		LastUploadAttemptMs:   types.UnixMs(out.AttemptedAt),
		LastUploadMs:          types.UnixMs(out.CompletedAt),
		LastUploadCode:        out.Code,
		LastUploadResponse:    out.Summary,
	}
	if r.reading.HasValue {
		st.WeightValue = r.reading.Value
	}
	switch c := r.scan.LastError(); c {
	case errcode.ScanFailed, errcode.ScanTimeout, errcode.ScanStartFailed:
		st.WifiScanLastError = string(c)
	}
	return st
}
