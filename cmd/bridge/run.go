//go:build !(rp2040 || rp2350)

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"sensorbridge-go/bus"
	"sensorbridge-go/platform"
	"sensorbridge-go/services/api"
	"sensorbridge-go/services/bridge"
	"sensorbridge-go/services/config"
	"sensorbridge-go/services/core"
	"sensorbridge-go/services/heartbeat"
	"sensorbridge-go/services/link"
	"sensorbridge-go/services/scan"
	"sensorbridge-go/services/settings"
	"sensorbridge-go/services/uploader"
	"sensorbridge-go/x/kv"
	"sensorbridge-go/x/logx"
)

const shutdownTimeout = 5 * time.Second

func run(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}

	// Logging: stderr plus the capped file served on /api/logs.
	var (
		out  io.Writer = os.Stderr
		logs api.LogSource
	)
	if cfg.Log.File != "" {
		cf, err := logx.OpenCapFile(cfg.Log.File, cfg.Log.FileMaxBytes)
		if err != nil {
			return fmt.Errorf("log file: %w", err)
		}
		defer cf.Close()
		logs = cf
		out = io.MultiWriter(os.Stderr, cf)
	}
	l := logx.New(out, logx.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	slog.SetDefault(l)

	// The settings store is the one dependency the bridge cannot start without.
	store, err := kv.NewBadger(kv.BadgerOptions{Dir: filepath.Join(cfg.DataDir, "kv"), Logger: l})
	if err != nil {
		return fmt.Errorf("settings store: %w", err)
	}
	defer logx.LogOnError(l, store.Close, "bridge:store-close-failed")

	b := bus.NewBus(16)

	radio, scanner := radioFor(cfg, l)
	deps := core.Deps{
		Radio:    radio,
		Scanner:  scanner,
		ScanBlob: scan.FileBlob{Path: filepath.Join(cfg.DataDir, "scan.json")},
		Poster:   uploader.NewHTTPPoster(cfg.Upload.URL, time.Duration(cfg.Upload.TimeoutMs)*time.Millisecond, cfg.Upload.InsecureTLS),
		Settings: settings.NewStore(store, l, cfg.Upload.DefaultToken),
		Bus:      b,
		Logger:   l,
	}
	if cfg.Serial.Port != "" {
		pump := platform.NewSerialPump(cfg.Serial.Port, cfg.Serial.Baud, l)
		pump.Start(ctx)
		deps.Serial = pump
	} else {
		l.Warn("bridge:no-serial-port")
	}

	rt := core.New(deps, core.Options{
		APSSID:    cfg.API.APSSID,
		APIP:      cfg.API.APIP,
		Heartbeat: time.Duration(cfg.Heartbeat.StatusMs) * time.Millisecond,
		Upload: uploader.Options{
			Timeout: time.Duration(cfg.Upload.TimeoutMs) * time.Millisecond,
			Token:   cfg.Upload.DefaultToken,
		},
	})
	rt.Boot(ctx, time.Now())

	config.NewConfigService(cfg, l).Start(ctx, b.NewConnection("config"))
	go bridge.Start(ctx, b.NewConnection("bridge"), l)

	hb := &heartbeat.Service{
		Target: rt,
		Period: time.Duration(cfg.Heartbeat.PeriodMs) * time.Millisecond,
		Logger: l,
	}
	hbDone := hb.Start(ctx, b.NewConnection("heartbeat"))

	h := api.New(rt, b, logs, l, api.Options{APIP: cfg.API.APIP, Captive: cfg.API.Captive})
	srv := &http.Server{
		Addr:              cfg.API.Listen,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		l.Info("bridge:listening", slog.String("addr", cfg.API.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-srvErr:
		l.Error("bridge:api-failed", logx.ErrAttr(err))
		stop()
	}

	l.Info("bridge:shutdown")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logx.LogOnError(l, func() error { return srv.Shutdown(sctx) }, "bridge:api-shutdown-failed")
	<-hbDone
	rt.Close(sctx)
	return err
}

// radioFor picks the simulated radio or, on a host whose OS owns the
// network, a radio that is always up.
func radioFor(cfg *config.Config, l *slog.Logger) (link.Radio, scan.Scanner) {
	if cfg.Sim.Enabled {
		r := platform.NewSimRadio(cfg.Sim, l)
		return r, r
	}
	r := &platform.FixedRadio{Up: true}
	return r, r
}
