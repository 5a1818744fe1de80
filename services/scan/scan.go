// Package scan keeps the list of visible networks. A scan is started on
// request, polled from the tick until the radio reports completion, and the
// deduplicated, RSSI-sorted result is persisted so a reboot does not start
// with an empty list.
package scan

import (
	"cmp"
	"log/slog"
	"slices"
	"strings"
	"time"

	"sensorbridge-go/errcode"
	"sensorbridge-go/types"
	"sensorbridge-go/x/logx"
)

// Progress is the radio's view of an in-flight scan.
type Progress uint8

const (
	Running Progress = iota
	Done
	Failed
)

// Scanner is the radio side of scanning. StartScan must not block;
// PollScan returns the results once progress is Done.
type Scanner interface {
	StartScan() error
	PollScan() ([]types.ScanEntry, Progress)
}

const (
	DefaultStale   = 30 * time.Second
	DefaultTimeout = 10 * time.Second
)

type Options struct {
	Stale   time.Duration // a completed scan younger than this is fresh
	Timeout time.Duration // a scan still running after this is abandoned
}

func (o Options) withDefaults() Options {
	if o.Stale <= 0 {
		o.Stale = DefaultStale
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Cache is the single writer of the scan list. Not safe for concurrent use;
// the runtime calls it from the tick only.
type Cache struct {
	sc   Scanner
	blob Blob
	log  *slog.Logger
	opt  Options

	entries    []types.ScanEntry
	lastDone   time.Time // zero = never
	inProgress bool
	startedAt  time.Time
	lastErr    errcode.Code
}

func New(sc Scanner, blob Blob, l *slog.Logger, opt Options) *Cache {
	return &Cache{
		sc:   sc,
		blob: blob,
		log:  logx.Component(l, "scan"),
		opt:  opt.withDefaults(),
	}
}

// Begin starts a scan unless one is running or, when force is false, the
// cache is still fresh. It reports whether a scan was started.
func (c *Cache) Begin(force bool, now time.Time) bool {
	if c.inProgress {
		return false
	}
	if !force && c.Fresh(now) {
		return false
	}
	if err := c.sc.StartScan(); err != nil {
		c.lastErr = errcode.ScanStartFailed
		c.log.Warn("scan:start-failed", logx.ErrAttr(err))
		return false
	}
	c.inProgress = true
	c.startedAt = now
	c.log.Debug("scan:started", slog.Bool("force", force))
	return true
}

// Poll advances an in-flight scan. It reports true when the scan ended on
// this call, whether it completed, failed or timed out. Calling it with no
// scan in flight does nothing.
func (c *Cache) Poll(now time.Time) bool {
	if !c.inProgress {
		return false
	}
	found, p := c.sc.PollScan()
	switch p {
	case Done:
		c.complete(found, now)
		return true
	case Failed:
		c.inProgress = false
		c.lastErr = errcode.ScanFailed
		c.log.Warn("scan:failed")
		return true
	}
	if now.Sub(c.startedAt) > c.opt.Timeout {
		c.inProgress = false
		c.lastErr = errcode.ScanTimeout
		c.log.Warn("scan:timeout", slog.Duration("after", now.Sub(c.startedAt)))
		return true
	}
	return false
}

func (c *Cache) complete(found []types.ScanEntry, now time.Time) {
	kept := found[:0:0]
	for _, e := range found {
		if e.SSID != "" {
			kept = append(kept, e)
		}
	}
	c.entries = Dedupe(kept)
	c.lastDone = now
	c.inProgress = false
	c.lastErr = errcode.ScanReady
	if err := c.save(); err != nil {
		c.log.Warn("scan:save-failed", logx.ErrAttr(err))
	}
	c.log.Info("scan:complete", slog.Int("networks", len(c.entries)))
}

// Fresh reports a completed scan younger than the stale window.
func (c *Cache) Fresh(now time.Time) bool {
	return !c.lastDone.IsZero() && now.Sub(c.lastDone) < c.opt.Stale
}

// Entries returns a copy of the cached list, strongest first.
func (c *Cache) Entries() []types.ScanEntry { return slices.Clone(c.entries) }

func (c *Cache) Len() int                   { return len(c.entries) }
func (c *Cache) InProgress() bool           { return c.inProgress }
func (c *Cache) LastError() errcode.Code    { return c.lastErr }
func (c *Cache) LastCompletedAt() time.Time { return c.lastDone }

// Dedupe keeps one entry per SSID, the one with the strongest RSSI, and
// returns them sorted by RSSI descending (ties by SSID).
func Dedupe(in []types.ScanEntry) []types.ScanEntry {
	best := make(map[string]types.ScanEntry, len(in))
	for _, e := range in {
		if cur, ok := best[e.SSID]; !ok || e.RSSI > cur.RSSI {
			best[e.SSID] = e
		}
	}
	out := make([]types.ScanEntry, 0, len(best))
	for _, e := range best {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b types.ScanEntry) int {
		if a.RSSI != b.RSSI {
			return cmp.Compare(b.RSSI, a.RSSI)
		}
		return strings.Compare(a.SSID, b.SSID)
	})
	return out
}
