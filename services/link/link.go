// Package link runs the station-mode connection state machine:
// Idle -> Connecting -> Connected, with failures parking in Backoff until
// the next automatic attempt. Radio callbacks only enqueue events; all
// state changes happen in Tick.
package link

import (
	"log/slog"
	"time"

	"tinygo.org/x/drivers/netlink"

	"sensorbridge-go/errcode"
	"sensorbridge-go/types"
	"sensorbridge-go/x/logx"
	"sensorbridge-go/x/mathx"
	"sensorbridge-go/x/timex"
)

// Event is a link notification from the radio. Kind reuses the netlink
// event kinds; Reason is only meaningful for EventNetDown.
type Event struct {
	Kind   netlink.Event
	Reason Reason
}

// Radio is the station interface. Connect must return promptly and report
// the outcome later through the notify callback. A deliberate Disconnect is
// not reported as a link-down.
type Radio interface {
	Connect(ssid, password string) error
	Disconnect()
	SSID() string
	RSSI() int32
	Addr() string
	SetNotify(func(Event))
}

// Significant-event reasons emitted by Tick.
const (
	EvConnected        = "wifi-connected"
	EvDisconnected     = "wifi-disconnected"
	EvTimeout          = "wifi-timeout"
	EvConnectRequested = "wifi-connect-requested"
)

type Options struct {
	ConnectTimeout time.Duration
	BackoffFloor   time.Duration
	BackoffCeiling time.Duration
	RetryGuard     time.Duration
	QueueLen       int
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 15 * time.Second
	}
	if o.BackoffFloor <= 0 {
		o.BackoffFloor = 15 * time.Second
	}
	if o.BackoffCeiling < o.BackoffFloor {
		o.BackoffCeiling = mathx.Max(60*time.Second, o.BackoffFloor)
	}
	if o.RetryGuard <= 0 {
		o.RetryGuard = time.Second
	}
	if o.QueueLen <= 0 {
		o.QueueLen = 8
	}
	return o
}

// Manager is the only writer of link state. Apart from Notify, its methods
// must be called from the tick goroutine.
type Manager struct {
	radio Radio
	log   *slog.Logger
	opt   Options
	evq   chan Event

	state    types.LinkState
	ssid     string
	password string
	pending  bool

	connectStartedAt time.Time
	nextAttemptAt    time.Time
	lastAttemptAt    time.Time
	lastConnectedAt  time.Time
	backoff          time.Duration
	lastErr          errcode.Code
	lastReason       Reason

	snap types.LinkStatus
}

func New(radio Radio, l *slog.Logger, opt Options) *Manager {
	opt = opt.withDefaults()
	m := &Manager{
		radio:   radio,
		log:     logx.Component(l, "link"),
		opt:     opt,
		evq:     make(chan Event, opt.QueueLen),
		backoff: opt.BackoffFloor,
		lastErr: errcode.LinkIdle,
	}
	radio.SetNotify(m.Notify)
	return m
}

// Notify enqueues a radio event. It never blocks; when the queue is full
// the oldest event is dropped. Safe to call from any goroutine.
func (m *Manager) Notify(ev Event) {
	for {
		select {
		case m.evq <- ev:
			return
		default:
		}
		select {
		case <-m.evq:
		default:
		}
	}
}

// Boot installs persisted credentials. With an SSID the first Tick starts
// connecting; without one the manager stays Idle.
func (m *Manager) Boot(ssid, password string) {
	m.ssid, m.password = ssid, password
	m.pending = ssid != ""
}

// RequestConnect stores new credentials and schedules a connect on the
// next Tick, restarting backoff from its floor.
func (m *Manager) RequestConnect(ssid, password string) {
	m.ssid, m.password = ssid, password
	m.backoff = m.opt.BackoffFloor
	m.nextAttemptAt = time.Time{}
	m.lastErr = errcode.LinkConnecting
	m.pending = true
}

// Forget drops the link and the stored credentials.
func (m *Manager) Forget() {
	m.radio.Disconnect()
	m.ssid, m.password = "", ""
	m.pending = false
	m.state = types.LinkIdle
	m.backoff = m.opt.BackoffFloor
	m.connectStartedAt = time.Time{}
	m.nextAttemptAt = time.Time{}
	m.lastErr = errcode.LinkCredentialsCleared
	m.lastReason = ReasonUnspecified
	m.log.Info("link:forgotten")
}

// Tick advances the state machine and returns the significant-event
// reasons produced on this call, in order.
func (m *Manager) Tick(now time.Time) []string {
	var out []string

	// 1. radio events
	for drained := false; !drained; {
		select {
		case ev := <-m.evq:
			if r := m.handle(ev, now); r != "" {
				out = append(out, r)
			}
		default:
			drained = true
		}
	}

	// 2. pending connect
	if m.pending {
		m.pending = false
		if r := m.connect(now); r != "" {
			out = append(out, r)
		}
	}

	// 3. connect timeout
	if m.state == types.LinkConnecting && now.Sub(m.connectStartedAt) > m.opt.ConnectTimeout {
		m.radio.Disconnect()
		m.fail(now, errcode.LinkTimeout)
		m.log.Warn("link:timeout", slog.String("ssid", m.ssid), slog.Duration("backoff", m.backoff))
		out = append(out, EvTimeout)
	}

	// 4. automatic reconnect
	if m.state == types.LinkBackoff && m.ssid != "" &&
		!m.nextAttemptAt.IsZero() && !now.Before(m.nextAttemptAt) &&
		(m.lastAttemptAt.IsZero() || now.Sub(m.lastAttemptAt) >= m.opt.RetryGuard) {
		if r := m.connect(now); r != "" {
			out = append(out, r)
		}
	}

	// 5. cached view
	m.snap = m.Status(now)
	return out
}

func (m *Manager) handle(ev Event, now time.Time) string {
	switch ev.Kind {
	case netlink.EventNetUp:
		if m.state != types.LinkConnecting && m.state != types.LinkBackoff {
			return ""
		}
		m.state = types.LinkConnected
		m.connectStartedAt = time.Time{}
		m.nextAttemptAt = time.Time{}
		m.backoff = m.opt.BackoffFloor
		m.lastConnectedAt = now
		m.lastErr = errcode.LinkConnected
		m.lastReason = ReasonUnspecified
		m.log.Info("link:connected", slog.String("ssid", m.ssid), slog.String("addr", m.radio.Addr()))
		return EvConnected
	case netlink.EventNetDown:
		if m.state != types.LinkConnecting && m.state != types.LinkConnected {
			return ""
		}
		m.lastReason = ev.Reason
		m.fail(now, ReasonText(ev.Reason))
		m.log.Warn("link:disconnected",
			slog.String("reason", string(m.lastErr)),
			slog.Int("code", int(ev.Reason)),
			slog.Duration("backoff", m.backoff))
		return EvDisconnected
	}
	return ""
}

// connect starts an attempt toward the stored SSID. Any existing
// association, finished or not, is torn down first.
func (m *Manager) connect(now time.Time) string {
	if m.ssid == "" {
		return ""
	}
	if m.state == types.LinkConnected && m.radio.SSID() == m.ssid {
		m.lastErr = errcode.LinkAlreadyConnected
		return ""
	}
	m.radio.Disconnect()

	m.lastAttemptAt = now
	m.lastReason = ReasonUnspecified
	if err := m.radio.Connect(m.ssid, m.password); err != nil {
		m.fail(now, errcode.LinkConnectFailed)
		m.log.Warn("link:connect-failed", slog.String("ssid", m.ssid), logx.ErrAttr(err))
		return EvDisconnected
	}
	m.state = types.LinkConnecting
	m.connectStartedAt = now
	m.nextAttemptAt = time.Time{}
	m.lastErr = errcode.LinkConnecting
	m.log.Info("link:connecting", slog.String("ssid", m.ssid))
	return EvConnectRequested
}

// fail parks the link in Backoff with a doubled delay.
func (m *Manager) fail(now time.Time, code errcode.Code) {
	m.state = types.LinkBackoff
	m.connectStartedAt = time.Time{}
	m.lastErr = code
	m.backoff = mathx.Double(m.backoff, m.opt.BackoffCeiling)
	m.nextAttemptAt = now.Add(m.backoff)
}

// Usable reports whether uploads may use the link.
func (m *Manager) Usable() bool { return m.state == types.LinkConnected }

func (m *Manager) State() types.LinkState        { return m.state }
func (m *Manager) LastError() errcode.Code       { return m.lastErr }
func (m *Manager) Backoff() time.Duration        { return m.backoff }
func (m *Manager) NextAttemptAt() time.Time      { return m.nextAttemptAt }
func (m *Manager) Credentials() (string, string) { return m.ssid, m.password }

// Status returns a read-only view computed at now.
func (m *Manager) Status(now time.Time) types.LinkStatus {
	s := types.LinkStatus{
		State:          m.state,
		SSID:           m.ssid,
		HasCredentials: m.ssid != "",
		LastAttemptAt:  m.lastAttemptAt,
		LastConnected:  m.lastConnectedAt,
		Backoff:        m.backoff,
		LastError:      string(m.lastErr),
		LastReason:     int32(m.lastReason),
	}
	switch m.state {
	case types.LinkConnecting:
		s.ConnectElapsed = timex.Since(now, m.connectStartedAt)
	case types.LinkBackoff:
		s.NextAttemptIn = timex.Until(now, m.nextAttemptAt)
	case types.LinkConnected:
		s.RSSI = m.radio.RSSI()
		s.Addr = m.radio.Addr()
	}
	return s
}

// Snapshot returns the view cached by the last Tick.
func (m *Manager) Snapshot() types.LinkStatus { return m.snap }
