package core

import (
	"log/slog"
	"time"

	"sensorbridge-go/errcode"
	"sensorbridge-go/services/settings"
	"sensorbridge-go/x/logx"
	"sensorbridge-go/x/timex"
)

type cmdKind uint8

const (
	cmdConnect cmdKind = iota + 1
	cmdForget
	cmdScan
	cmdSettings
)

type command struct {
	kind     cmdKind
	ssid     string
	password string
	force    bool
	interval time.Duration
	token    string
}

func (r *Runtime) enqueue(c command) error {
	select {
	case r.cmdq <- c:
		return nil
	default:
		return errcode.New(errcode.Busy, "core", "command queue full")
	}
}

// RequestConnect validates and queues a connect to ssid. Safe from any
// goroutine; it takes effect on the next Tick.
func (r *Runtime) RequestConnect(ssid, password string) error {
	ssid, err := settings.ValidateCredentials(ssid, password)
	if err != nil {
		return err
	}
	return r.enqueue(command{kind: cmdConnect, ssid: ssid, password: password})
}

// RequestDisconnect queues forgetting the saved network.
func (r *Runtime) RequestDisconnect() error {
	return r.enqueue(command{kind: cmdForget})
}

// RequestScan queues a scan. Without force a fresh cache is served as is.
func (r *Runtime) RequestScan(force bool) error {
	if err := r.enqueue(command{kind: cmdScan, force: force}); err != nil {
		return err
	}
	if force || !r.nets.Load().fresh {
		r.scanQueued.Store(true)
	}
	return nil
}

// UpdateSettings validates and queues new upload settings.
func (r *Runtime) UpdateSettings(intervalMs int64, token string) error {
	d, tok, err := settings.ValidateUpload(intervalMs, token)
	if err != nil {
		return err
	}
	return r.enqueue(command{kind: cmdSettings, interval: d, token: tok})
}

// applyCommands drains the queue and returns the status reasons produced.
func (r *Runtime) applyCommands() []string {
	var out []string
	for {
		var c command
		select {
		case c = <-r.cmdq:
		default:
			return out
		}
		switch c.kind {
		case cmdConnect:
			r.link.RequestConnect(c.ssid, c.password)
			r.settings.SSID, r.settings.Password = c.ssid, c.password
			r.persistCredentials()
		case cmdForget:
			r.link.Forget()
			r.settings.SSID, r.settings.Password = "", ""
			r.persistCredentials()
			out = append(out, ReasonForgotten)
		case cmdScan:
			r.scanWanted = true
			r.scanForce = r.scanForce || c.force
		case cmdSettings:
			r.settings.UploadInterval, r.settings.UploadToken = c.interval, c.token
			r.up.SetInterval(c.interval)
			r.up.SetToken(c.token)
			r.log.Info("core:settings-updated", slog.Int64("upload_interval_ms", timex.Ms(c.interval)))
			if r.store != nil {
				logx.LogOnError(r.log, func() error {
					return r.store.SaveUpload(r.ctx, c.interval, c.token)
				}, "core:settings-save-failed")
			}
			out = append(out, ReasonSettingsUpdated)
		}
	}
}

// A failed write leaves the in-memory credentials authoritative.
func (r *Runtime) persistCredentials() {
	if r.store == nil {
		return
	}
	logx.LogOnError(r.log, func() error {
		return r.store.SaveCredentials(r.ctx, r.settings.SSID, r.settings.Password)
	}, "core:credentials-save-failed")
}
