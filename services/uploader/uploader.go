// Package uploader posts the latest reading to the remote collector no more
// often than the configured interval. Attempts run off the tick goroutine;
// the tick only starts them and collects their results.
package uploader

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"sensorbridge-go/types"
	"sensorbridge-go/x/logx"
	"sensorbridge-go/x/strconvx"
	"sensorbridge-go/x/strx"
)

const (
	DefaultInterval   = 5 * time.Second
	DefaultTimeout    = 8 * time.Second
	DefaultSummaryLen = 64
)

// Poster sends one reading to the collector. code is the HTTP status, or a
// negative transport code when err is non-nil.
type Poster interface {
	Post(ctx context.Context, body, token string) (code int, resp string, err error)
}

type Options struct {
	Interval   time.Duration
	Timeout    time.Duration
	SummaryLen int
	Token      string
	// Now stamps results applied by Settle. Defaults to time.Now.
	Now        func() time.Time
}

var errAbandoned = errors.New("uploader: poster ignored its deadline")

type result struct {
	code int
	resp string
	err  error
}

// Throttler owns the upload outcome slot. Apart from Settle, its methods
// must be called from the tick goroutine.
type Throttler struct {
	poster Poster
	log    *slog.Logger
	opt    Options

	interval      time.Duration
	token         string
	lastAttemptAt time.Time
	inflight      chan result
	outcome       types.UploadOutcome
}

func New(p Poster, l *slog.Logger, opt Options) *Throttler {
	if opt.Interval <= 0 {
		opt.Interval = DefaultInterval
	}
	if opt.Timeout <= 0 {
		opt.Timeout = DefaultTimeout
	}
	if opt.SummaryLen <= 0 {
		opt.SummaryLen = DefaultSummaryLen
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Throttler{
		poster:   p,
		log:      logx.Component(l, "uploader"),
		opt:      opt,
		interval: opt.Interval,
		token:    opt.Token,
	}
}

// SetInterval takes an already validated interval.
func (t *Throttler) SetInterval(d time.Duration) { t.interval = d }

// SetToken takes an already normalized token.
func (t *Throttler) SetToken(tok string) { t.token = tok }

func (t *Throttler) Interval() time.Duration { return t.interval }
func (t *Throttler) Token() string           { return t.token }
func (t *Throttler) InFlight() bool          { return t.inflight != nil }

// Outcome returns the latest attempt's record.
func (t *Throttler) Outcome() types.UploadOutcome { return t.outcome }

// Tick collects a finished upload, reporting true when it did, then starts
// a new attempt if the reading, the link and the interval all allow it. An
// attempt still running past the timeout is abandoned as a read timeout.
func (t *Throttler) Tick(now time.Time, r types.Reading, usable bool) bool {
	completed := false
	if t.inflight != nil {
		select {
		case res := <-t.inflight:
			t.apply(res, now)
			completed = true
		default:
			if now.Sub(t.lastAttemptAt) > t.opt.Timeout {
				t.apply(result{code: CodeReadTimeout, err: errAbandoned}, now)
				completed = true
			}
		}
	}

	switch {
	case !r.HasValue, !usable, t.inflight != nil:
		return completed
	case !t.lastAttemptAt.IsZero() && now.Sub(t.lastAttemptAt) < t.interval:
		return completed
	}
	t.start(now, r.Value)
	return completed
}

func (t *Throttler) start(now time.Time, v float64) {
	t.lastAttemptAt = now
	t.outcome.AttemptedAt = now

	body := strconvx.FormatFloat(v, 'f', 3, 64)
	token, timeout, p := t.token, t.opt.Timeout, t.poster
	ch := make(chan result, 1)
	t.inflight = ch
	t.log.Debug("upload:start", "body", body)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		code, resp, err := p.Post(ctx, body, token)
		ch <- result{code: code, resp: resp, err: err}
	}()
}

func (t *Throttler) apply(res result, now time.Time) {
	t.inflight = nil

	code := res.code
	if res.err != nil && code >= 0 {
		code = Classify(res.err)
	}

	var summary string
	switch {
	case code >= 200 && code < 300:
		summary = "ok"
	case code > 0:
		summary = strx.Truncate(strings.TrimSpace(res.resp), t.opt.SummaryLen)
	default:
		summary = CodeText(code)
	}
	t.outcome.Code = code
	t.outcome.Summary = summary
	t.outcome.CompletedAt = now

	if code >= 200 && code < 300 {
		t.log.Info("upload:done", "code", code)
		return
	}
	attrs := []any{"code", code, "summary", summary}
	if res.err != nil {
		attrs = append(attrs, logx.ErrAttr(res.err))
	}
	t.log.Warn("upload:failed", attrs...)
}

// Settle waits for an in-flight upload and applies its result. It reports
// whether a result was applied.
func (t *Throttler) Settle(ctx context.Context) bool {
	if t.inflight == nil {
		return false
	}
	select {
	case res := <-t.inflight:
		t.apply(res, t.opt.Now())
		return true
	case <-ctx.Done():
		return false
	}
}
