//go:build rp2040 || rp2350

// pico-bridge is the firmware entry point: the scale on UART1, the station
// link on an injected netlink driver and settings in RAM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"machine"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"sensorbridge-go/bus"
	"sensorbridge-go/platform"
	"sensorbridge-go/services/config"
	"sensorbridge-go/services/core"
	"sensorbridge-go/services/heartbeat"
	"sensorbridge-go/services/link"
	"sensorbridge-go/services/scan"
	"sensorbridge-go/services/settings"
	"sensorbridge-go/services/uploader"
	"sensorbridge-go/x/kv"
)

const (
	apSSID = "Scale-Setup"
	apIP   = "192.168.4.1"

	scaleTX = machine.GP4
	scaleRX = machine.GP5
)

// wifi is set by a board file for boards with a netlink wifi driver. Left
// nil, the station link always reports ap-not-found.
var wifi link.Netlinker

// poster is set by a board file that has a network stack. Left nil, readings
// are decoded and reported but never uploaded.
var poster uploader.Poster

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)

	l := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{Level: slog.LevelInfo}))
	l.Info("boot")

	ctx := context.Background()
	b := bus.NewBus(8)

	var radio link.Radio = &platform.FixedRadio{}
	var scanner scan.Scanner = &platform.FixedRadio{}
	if wifi != nil {
		radio = link.NewNetlinkRadio(wifi, 15*time.Second)
	}

	pump := platform.NewUARTPump(uartx.UART1, scaleTX, scaleRX, l)
	pump.Start(ctx)

	cfg := &config.Config{Device: "pico"}
	cfg.API.APSSID, cfg.API.APIP = apSSID, apIP
	cfg.ApplyDefaults()

	deps := core.Deps{
		Radio:    radio,
		Scanner:  scanner,
		ScanBlob: &scan.MemoryBlob{},
		Serial:   pump,
		Settings: settings.NewStore(kv.NewMemory(), l, ""),
		Bus:      b,
		Logger:   l,
	}
	if poster != nil {
		deps.Poster = poster
	} else {
		deps.Poster = offlinePoster{}
	}

	rt := core.New(deps, core.Options{APSSID: apSSID, APIP: apIP})
	rt.Boot(ctx, time.Now())
	config.NewConfigService(cfg, l).Publish(b.NewConnection("config"))

	hb := &heartbeat.Service{Target: rt, Period: heartbeat.DefaultPeriod, Logger: l}
	hb.Run(ctx, b.NewConnection("heartbeat"))
}

// offlinePoster reports every upload as not connected.
type offlinePoster struct{}

func (offlinePoster) Post(context.Context, string, string) (int, string, error) {
	return uploader.CodeNotConnected, "", errOffline
}

var errOffline = errors.New("no network stack")
