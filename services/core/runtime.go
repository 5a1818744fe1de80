// Package core is the bridge's explicit context object. One Runtime owns the
// decoder, scan cache, link manager, throttler, reading slot and settings;
// everything is advanced from Tick on a single goroutine. Other goroutines
// talk to it only through the command queue and the published snapshots.
package core

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"sensorbridge-go/bus"
	"sensorbridge-go/services/decoder"
	"sensorbridge-go/services/link"
	"sensorbridge-go/services/scan"
	"sensorbridge-go/services/settings"
	"sensorbridge-go/services/uploader"
	"sensorbridge-go/types"
	"sensorbridge-go/x/logx"
)

// Status reasons besides the link events.
const (
	ReasonBoot            = "boot"
	ReasonHeartbeat       = "heartbeat"
	ReasonForgotten       = "wifi-forgotten"
	ReasonScanComplete    = "scan-complete"
	ReasonSettingsUpdated = "settings-updated"
	ReasonUploaded        = "weight-uploaded"
)

var TopicStatus = bus.T("status")

type Deps struct {
	Radio    link.Radio
	Scanner  scan.Scanner
	ScanBlob scan.Blob
	Serial   decoder.Source // nil: no scale attached
	Poster   uploader.Poster
	Settings *settings.Store
	Bus      *bus.Bus // nil: status is not published
	Logger   *slog.Logger
}

type Options struct {
	APSSID    string
	APIP      string
	BootID    string
	Heartbeat time.Duration
	QueueLen  int

	Link   link.Options
	Scan   scan.Options
	Upload uploader.Options
}

func (o Options) withDefaults() Options {
	if o.Heartbeat <= 0 {
		o.Heartbeat = time.Second
	}
	if o.QueueLen <= 0 {
		o.QueueLen = 16
	}
	if o.BootID == "" {
		o.BootID = uuid.NewString()
	}
	return o
}

type Runtime struct {
	log  *slog.Logger
	opt  Options
	conn *bus.Connection

	serial decoder.Source
	dec    *decoder.Decoder
	scan   *scan.Cache
	link   *link.Manager
	up     *uploader.Throttler
	store  *settings.Store

	ctx      context.Context
	settings settings.Settings
	reading  types.Reading

	cmdq       chan command
	scanWanted bool
	scanForce  bool

	bootAt        time.Time
	lastHeartbeat time.Time

	snap       atomic.Pointer[types.Status]
	nets       atomic.Pointer[netView]
	setView    atomic.Pointer[settings.Settings]
	scanQueued atomic.Bool
}

func New(d Deps, opt Options) *Runtime {
	opt = opt.withDefaults()
	l := d.Logger
	if l == nil {
		l = slog.Default()
	}
	r := &Runtime{
		log:    logx.Component(l, "core"),
		opt:    opt,
		serial: d.Serial,
		dec:    decoder.New(),
		scan:   scan.New(d.Scanner, d.ScanBlob, l, opt.Scan),
		link:   link.New(d.Radio, l, opt.Link),
		up:     uploader.New(d.Poster, l, opt.Upload),
		store:  d.Settings,
		ctx:    context.Background(),
		cmdq:   make(chan command, opt.QueueLen),
	}
	if d.Bus != nil {
		r.conn = d.Bus.NewConnection("core")
	}
	r.snap.Store(&types.Status{BootID: opt.BootID})
	r.nets.Store(&netView{})
	r.setView.Store(&settings.Settings{})
	return r
}

// Boot loads persisted state and publishes the boot status. Load failures
// are logged; the device continues on defaults.
func (r *Runtime) Boot(ctx context.Context, now time.Time) {
	r.ctx = ctx
	r.bootAt = now
	r.lastHeartbeat = now

	if r.store != nil {
		s, err := r.store.Load(ctx)
		if err != nil {
			r.log.Warn("core:settings-load-failed", logx.ErrAttr(err))
		}
		r.settings = s
	} else {
		r.settings = settings.Defaults(r.up.Token())
	}
	r.up.SetInterval(r.settings.UploadInterval)
	r.up.SetToken(r.settings.UploadToken)

	r.scan.Load()
	r.link.Boot(r.settings.SSID, r.settings.Password)

	r.log.Info("core:boot",
		slog.String("boot_id", r.opt.BootID),
		slog.Bool("has_credentials", r.settings.SSID != ""),
		slog.Duration("upload_interval", r.settings.UploadInterval))
	r.refresh(now)
	r.publish(ReasonBoot)
}

// Tick runs one scheduler pass. It never blocks.
func (r *Runtime) Tick(now time.Time) {
	var reasons []string

	// 1. commands
	reasons = append(reasons, r.applyCommands()...)

	// 2. serial
	if r.serial != nil {
		for _, rd := range r.dec.Drain(r.serial, now) {
			r.reading.Merge(rd)
		}
	}

	// 3. link
	reasons = append(reasons, r.link.Tick(now)...)

	// 4. scan
	if r.scanWanted {
		r.scan.Begin(r.scanForce, now)
		r.scanWanted, r.scanForce = false, false
		r.scanQueued.Store(false)
	}
	if r.scan.Poll(now) {
		reasons = append(reasons, ReasonScanComplete)
	}

	// 5. upload
	if r.up.Tick(now, r.reading, r.link.Usable()) {
		reasons = append(reasons, ReasonUploaded)
	}

	// 6. snapshots
	r.refresh(now)

	// 7. status push
	for _, reason := range reasons {
		r.publish(reason)
	}
	if now.Sub(r.lastHeartbeat) >= r.opt.Heartbeat {
		r.lastHeartbeat = now
		r.publish(ReasonHeartbeat)
	}
}

// Close settles an in-flight upload. Call it after the tick loop stops.
func (r *Runtime) Close(ctx context.Context) {
	if r.up.Settle(ctx) {
		r.log.Info("core:upload-settled", slog.Int("code", r.up.Outcome().Code))
	}
	if r.conn != nil {
		r.conn.Disconnect()
	}
}

// Snapshot returns the status as of the last tick. Safe from any goroutine.
func (r *Runtime) Snapshot() types.Status { return *r.snap.Load() }

type netView struct {
	entries    []types.ScanEntry
	inProgress bool
	fresh      bool // as judged by the cache at the last tick
	last       time.Time
}

// Networks returns the scan cache as of the last tick. inProgress also
// covers a scan requested but not yet started. Safe from any goroutine.
func (r *Runtime) Networks() (entries []types.ScanEntry, inProgress bool, last time.Time) {
	n := r.nets.Load()
	return n.entries, n.inProgress || r.scanQueued.Load(), n.last
}

// Settings returns the runtime settings as of the last tick. Safe from any
// goroutine.
func (r *Runtime) Settings() settings.Settings { return *r.setView.Load() }

// Reading returns the retained reading. Tick goroutine only.
func (r *Runtime) Reading() types.Reading { return r.reading }

func (r *Runtime) refresh(now time.Time) {
	st := r.buildStatus(now)
	r.snap.Store(&st)
	set := r.settings
	r.setView.Store(&set)
	r.nets.Store(&netView{
		entries:    r.scan.Entries(),
		inProgress: r.scan.InProgress(),
		fresh:      r.scan.Fresh(now),
		last:       r.scan.LastCompletedAt(),
	})
}

func (r *Runtime) publish(reason string) {
	if r.conn == nil {
		return
	}
	st := r.Snapshot()
	st.Reason = reason
	r.conn.Publish(r.conn.NewMessage(TopicStatus, st, true))
	if reason != ReasonHeartbeat {
		r.log.Debug("core:status", slog.String("reason", reason))
	}
}
