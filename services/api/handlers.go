//go:build !(rp2040 || rp2350)

package api

import (
	"net/http"
	"strings"

	"sensorbridge-go/types"
	"sensorbridge-go/x/logx"
)

const reasonAPIStatus = "api-status"

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) error {
	s := h.core.Snapshot()
	s.Reason = reasonAPIStatus
	RespondJSON(w, r, http.StatusOK, s)
	return nil
}

type connectRequest struct {
	SSID     *string `json:"ssid"`
	Password string  `json:"password"`
}

type connectResponse struct {
	Status  string `json:"status"`
	SSID    string `json:"ssid"`
	Message string `json:"message"`
}

func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) error {
	req, err := DecodeJSON[connectRequest](w, r)
	if err != nil {
		return err
	}
	if req.SSID == nil {
		return badRequest("ssid required")
	}
	if err := h.core.RequestConnect(*req.SSID, req.Password); err != nil {
		return err
	}
	GetLogger(r.Context()).Info("api:connect-requested", "ssid", *req.SSID)
	RespondJSON(w, r, http.StatusOK, connectResponse{
		Status:  "connecting",
		SSID:    strings.TrimSpace(*req.SSID),
		Message: "Connection attempt started",
	})
	return nil
}

type statusResponse struct {
	Status string `json:"status"`
}

func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) error {
	if err := h.core.RequestDisconnect(); err != nil {
		return err
	}
	RespondJSON(w, r, http.StatusOK, statusResponse{Status: "forgotten"})
	return nil
}

type scanResponse struct {
	Status     string            `json:"status"`
	Cached     bool              `json:"cached"`
	LastScanMs int64             `json:"last_scan_ms"`
	Networks   []types.ScanEntry `json:"networks"`
}

// Scan queues a scan when the cache is stale (or refresh=1) and answers
// with whatever is cached. An empty cache with a scan running is a 202.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) error {
	if err := h.core.RequestScan(r.URL.Query().Get("refresh") == "1"); err != nil {
		return err
	}
	entries, inProgress, last := h.core.Networks()
	if inProgress && len(entries) == 0 {
		RespondJSON(w, r, http.StatusAccepted, statusResponse{Status: "scanning"})
		return nil
	}
	resp := scanResponse{
		Status:     "ready",
		Cached:     inProgress,
		LastScanMs: types.UnixMs(last),
		Networks:   entries,
	}
	if inProgress {
		resp.Status = "scanning"
	}
	if resp.Networks == nil {
		resp.Networks = []types.ScanEntry{}
	}
	RespondJSON(w, r, http.StatusOK, resp)
	return nil
}

type settingsDoc struct {
	UploadIntervalMs *int64  `json:"upload_interval_ms"`
	UploadAuthToken  *string `json:"upload_auth_token"`
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) error {
	s := h.core.Settings()
	ms := s.UploadInterval.Milliseconds()
	RespondJSON(w, r, http.StatusOK, settingsDoc{UploadIntervalMs: &ms, UploadAuthToken: &s.UploadToken})
	return nil
}

func (h *Handler) PostSettings(w http.ResponseWriter, r *http.Request) error {
	req, err := DecodeJSON[settingsDoc](w, r)
	if err != nil {
		return err
	}
	if req.UploadIntervalMs == nil || *req.UploadIntervalMs <= 0 {
		return badRequest("upload_interval_ms must be a positive integer")
	}
	if req.UploadAuthToken == nil {
		return badRequest("upload_auth_token must be a non-empty string")
	}
	if err := h.core.UpdateSettings(*req.UploadIntervalMs, *req.UploadAuthToken); err != nil {
		return err
	}
	RespondJSON(w, r, http.StatusOK, statusResponse{Status: "saved"})
	return nil
}

// Logs streams the capped device log as plain text.
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if h.logs == nil || h.logs.Size() == 0 {
		_, err := w.Write([]byte("No logs yet"))
		return err
	}
	if _, err := h.logs.WriteTo(w); err != nil {
		// Headers are out; the client sees a short body.
		GetLogger(r.Context()).Warn("api:logs-read-failed", logx.ErrAttr(err))
	}
	return nil
}
