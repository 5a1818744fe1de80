package link

import (
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"tinygo.org/x/drivers/netlink"

	"sensorbridge-go/errcode"
	"sensorbridge-go/types"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeRadio struct {
	mu          sync.Mutex
	notify      func(Event)
	connects    []string
	disconnects int
	ssid        string
	connectErr  error
}

func (f *fakeRadio) Connect(ssid, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connects = append(f.connects, ssid)
	f.ssid = ssid
	return nil
}

func (f *fakeRadio) Disconnect() {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
}

func (f *fakeRadio) SSID() string             { return f.ssid }
func (f *fakeRadio) RSSI() int32              { return -42 }
func (f *fakeRadio) Addr() string             { return "192.168.1.50" }
func (f *fakeRadio) SetNotify(fn func(Event)) { f.notify = fn }

func (f *fakeRadio) up()           { f.notify(Event{Kind: netlink.EventNetUp}) }
func (f *fakeRadio) down(r Reason) { f.notify(Event{Kind: netlink.EventNetDown, Reason: r}) }

func (f *fakeRadio) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.connects)
}

func newManager(t *testing.T) (*Manager, *fakeRadio) {
	t.Helper()
	r := &fakeRadio{}
	return New(r, nil, Options{}), r
}

func at(d time.Duration) time.Time { return t0.Add(d) }

func expectState(t *testing.T, m *Manager, want types.LinkState) {
	t.Helper()
	if m.State() != want {
		t.Fatalf("state = %v, want %v", m.State(), want)
	}
}

func TestBoot_NoCredentialsStaysIdle(t *testing.T) {
	m, r := newManager(t)
	m.Boot("", "")
	if ev := m.Tick(t0); len(ev) != 0 {
		t.Fatalf("unexpected events %v", ev)
	}
	expectState(t, m, types.LinkIdle)
	if r.connectCount() != 0 {
		t.Fatal("no connect expected")
	}
	if m.Usable() {
		t.Fatal("idle link is not usable")
	}
}

func TestBoot_WithCredentialsConnects(t *testing.T) {
	m, r := newManager(t)
	m.Boot("Home", "password1")
	ev := m.Tick(t0)
	if !slices.Equal(ev, []string{EvConnectRequested}) {
		t.Fatalf("events = %v", ev)
	}
	expectState(t, m, types.LinkConnecting)
	if r.connectCount() != 1 || m.LastError() != errcode.LinkConnecting {
		t.Fatalf("connects=%d lastErr=%q", r.connectCount(), m.LastError())
	}
}

func TestConnectThenLinkUp(t *testing.T) {
	m, r := newManager(t)
	m.Boot("", "")
	m.Tick(t0)

	m.RequestConnect("Home", "password1")
	m.Tick(at(100 * time.Millisecond))
	expectState(t, m, types.LinkConnecting)

	st := m.Status(at(time.Second))
	if st.ConnectElapsed != 900*time.Millisecond || st.NextAttemptIn != 0 {
		t.Fatalf("timers = %v / %v", st.ConnectElapsed, st.NextAttemptIn)
	}

	r.up()
	ev := m.Tick(at(2 * time.Second))
	if !slices.Equal(ev, []string{EvConnected}) {
		t.Fatalf("events = %v", ev)
	}
	expectState(t, m, types.LinkConnected)
	if !m.Usable() || m.Backoff() != 15*time.Second || !m.NextAttemptAt().IsZero() {
		t.Fatalf("usable=%v backoff=%v next=%v", m.Usable(), m.Backoff(), m.NextAttemptAt())
	}
	snap := m.Snapshot()
	if !snap.LastConnected.Equal(at(2*time.Second)) || snap.RSSI != -42 || snap.Addr != "192.168.1.50" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestBackoffSequence(t *testing.T) {
	m, r := newManager(t)
	m.Boot("Home", "password1")
	m.Tick(t0)

	now := t0
	var seen []time.Duration
	for i := 0; i < 3; i++ {
		r.down(ReasonNoAPFound)
		now = now.Add(time.Second)
		m.Tick(now)
		expectState(t, m, types.LinkBackoff)
		seen = append(seen, m.Backoff())
		if !m.NextAttemptAt().Equal(now.Add(m.Backoff())) {
			t.Fatalf("nextAttemptAt = %v", m.NextAttemptAt())
		}
		now = m.NextAttemptAt()
		m.Tick(now)
		expectState(t, m, types.LinkConnecting)
	}
	want := []time.Duration{30 * time.Second, 60 * time.Second, 60 * time.Second}
	if !slices.Equal(seen, want) {
		t.Fatalf("backoff = %v, want %v", seen, want)
	}

	r.up()
	now = now.Add(time.Second)
	m.Tick(now)
	if m.Backoff() != 15*time.Second {
		t.Fatalf("backoff after success = %v", m.Backoff())
	}
	r.down(ReasonBeaconTimeout)
	m.Tick(now.Add(time.Second))
	if m.Backoff() != 30*time.Second || m.LastError() != errcode.LinkBeaconTimeout {
		t.Fatalf("backoff=%v err=%q", m.Backoff(), m.LastError())
	}
}

func TestConnectTimeout(t *testing.T) {
	m, r := newManager(t)
	m.Boot("Home", "password1")
	m.Tick(t0)

	if ev := m.Tick(at(15 * time.Second)); len(ev) != 0 {
		t.Fatalf("15s exactly is not a timeout: %v", ev)
	}
	ev := m.Tick(at(15*time.Second + time.Millisecond))
	if !slices.Equal(ev, []string{EvTimeout}) {
		t.Fatalf("events = %v", ev)
	}
	expectState(t, m, types.LinkBackoff)
	// One teardown before the attempt, one on timeout.
	if m.LastError() != errcode.LinkTimeout || r.disconnects != 2 {
		t.Fatalf("err=%q disconnects=%d", m.LastError(), r.disconnects)
	}
	st := m.Status(at(20 * time.Second))
	if st.ConnectElapsed != 0 || st.NextAttemptIn <= 0 {
		t.Fatalf("only nextAttempt may be set in backoff: %+v", st)
	}
}

func TestAuthExpiredThenAutoReconnect(t *testing.T) {
	m, r := newManager(t)
	m.Boot("Home", "password1")
	m.Tick(t0)
	r.up()
	m.Tick(at(2 * time.Second))
	expectState(t, m, types.LinkConnected)

	r.down(ReasonAuthExpire)
	ev := m.Tick(at(10 * time.Second))
	if !slices.Equal(ev, []string{EvDisconnected}) {
		t.Fatalf("events = %v", ev)
	}
	expectState(t, m, types.LinkBackoff)
	if m.LastError() != errcode.LinkAuthExpired || m.Status(at(10*time.Second)).LastReason != 2 {
		t.Fatalf("err=%q", m.LastError())
	}

	m.Tick(at(10*time.Second + m.Backoff() - time.Millisecond))
	expectState(t, m, types.LinkBackoff)

	ev = m.Tick(at(10*time.Second + m.Backoff()))
	if !slices.Equal(ev, []string{EvConnectRequested}) {
		t.Fatalf("events = %v", ev)
	}
	expectState(t, m, types.LinkConnecting)
	if r.connectCount() != 2 {
		t.Fatalf("connects = %d", r.connectCount())
	}
}

func TestRedundantConnect(t *testing.T) {
	m, r := newManager(t)
	m.Boot("Home", "password1")
	m.Tick(t0)
	r.up()
	m.Tick(at(time.Second))

	m.RequestConnect("Home", "password1")
	if ev := m.Tick(at(2 * time.Second)); len(ev) != 0 {
		t.Fatalf("events = %v", ev)
	}
	expectState(t, m, types.LinkConnected)
	if m.LastError() != errcode.LinkAlreadyConnected || r.connectCount() != 1 || r.disconnects != 1 {
		t.Fatalf("err=%q connects=%d disconnects=%d", m.LastError(), r.connectCount(), r.disconnects)
	}

	m.RequestConnect("Office", "password2")
	m.Tick(at(3 * time.Second))
	expectState(t, m, types.LinkConnecting)
	if r.disconnects != 2 || r.connectCount() != 2 || r.connects[1] != "Office" {
		t.Fatalf("disconnects=%d connects=%v", r.disconnects, r.connects)
	}
}

func TestRequestConnect_WhileConnectingTearsDown(t *testing.T) {
	m, r := newManager(t)
	m.Boot("Home", "password1")
	m.Tick(t0)
	expectState(t, m, types.LinkConnecting)
	if r.disconnects != 1 {
		t.Fatalf("disconnects = %d, want a teardown before the first attempt", r.disconnects)
	}

	m.RequestConnect("Office", "password2")
	ev := m.Tick(at(time.Second))
	if !slices.Equal(ev, []string{EvConnectRequested}) {
		t.Fatalf("events = %v", ev)
	}
	expectState(t, m, types.LinkConnecting)
	if r.disconnects != 2 || !slices.Equal(r.connects, []string{"Home", "Office"}) {
		t.Fatalf("disconnects=%d connects=%v", r.disconnects, r.connects)
	}
	if st := m.Status(at(2 * time.Second)); st.ConnectElapsed != time.Second {
		t.Fatalf("connect clock not restarted: %v", st.ConnectElapsed)
	}
}

func TestAutoReconnect_GuardFromLastAttempt(t *testing.T) {
	r := &fakeRadio{}
	m := New(r, nil, Options{BackoffFloor: 100 * time.Millisecond, BackoffCeiling: time.Second, RetryGuard: time.Second})
	m.Boot("Home", "password1")
	m.Tick(t0)
	r.down(ReasonAuthFail)
	m.Tick(at(200 * time.Millisecond))
	expectState(t, m, types.LinkBackoff)

	// nextAttemptAt has passed but the last attempt was under 1 s ago.
	m.Tick(at(999 * time.Millisecond))
	expectState(t, m, types.LinkBackoff)

	ev := m.Tick(at(time.Second))
	if !slices.Equal(ev, []string{EvConnectRequested}) {
		t.Fatalf("events = %v", ev)
	}
	if r.connectCount() != 2 {
		t.Fatalf("connects = %d", r.connectCount())
	}
}

func TestRequestConnect_ResetsBackoff(t *testing.T) {
	m, r := newManager(t)
	m.Boot("Home", "password1")
	m.Tick(t0)
	r.down(ReasonAuthFail)
	m.Tick(at(time.Second))
	if m.Backoff() != 30*time.Second {
		t.Fatalf("backoff = %v", m.Backoff())
	}

	m.RequestConnect("Home", "password2")
	if m.Backoff() != 15*time.Second || !m.NextAttemptAt().IsZero() || m.LastError() != errcode.LinkConnecting {
		t.Fatalf("backoff=%v next=%v err=%q", m.Backoff(), m.NextAttemptAt(), m.LastError())
	}
	m.Tick(at(2 * time.Second))
	expectState(t, m, types.LinkConnecting)
}

func TestForget(t *testing.T) {
	m, r := newManager(t)
	m.Boot("Home", "password1")
	m.Tick(t0)
	r.up()
	m.Tick(at(time.Second))

	m.Forget()
	expectState(t, m, types.LinkIdle)
	if r.disconnects != 2 || m.LastError() != errcode.LinkCredentialsCleared {
		t.Fatalf("disconnects=%d err=%q", r.disconnects, m.LastError())
	}
	if ssid, _ := m.Credentials(); ssid != "" {
		t.Fatal("credentials must be cleared")
	}

	// A late link-down from the teardown is ignored; nothing reconnects.
	r.down(ReasonUnspecified)
	if ev := m.Tick(at(time.Minute)); len(ev) != 0 {
		t.Fatalf("events = %v", ev)
	}
	expectState(t, m, types.LinkIdle)
	if r.connectCount() != 1 {
		t.Fatal("no reconnect after forget")
	}
}

func TestConnectError_GoesToBackoff(t *testing.T) {
	m, r := newManager(t)
	r.connectErr = errors.New("radio off")
	m.Boot("Home", "password1")
	ev := m.Tick(t0)
	if !slices.Equal(ev, []string{EvDisconnected}) {
		t.Fatalf("events = %v", ev)
	}
	expectState(t, m, types.LinkBackoff)
	if m.LastError() != errcode.LinkConnectFailed {
		t.Fatalf("err=%q", m.LastError())
	}
}

func TestNotify_FullQueueDropsOldest(t *testing.T) {
	r := &fakeRadio{}
	m := New(r, nil, Options{QueueLen: 2})
	m.Boot("Home", "password1")
	m.Tick(t0)

	r.down(ReasonAuthFail) // dropped
	r.down(ReasonAuthFail)
	r.up()
	ev := m.Tick(at(time.Second))
	if !slices.Equal(ev, []string{EvDisconnected, EvConnected}) {
		t.Fatalf("events = %v", ev)
	}
}

func TestNotify_ConcurrentProducers(t *testing.T) {
	m, r := newManager(t)
	m.Boot("Home", "password1")
	m.Tick(t0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.down(ReasonBeaconTimeout)
			}
		}()
	}
	wg.Wait()
	m.Tick(at(time.Second))
	expectState(t, m, types.LinkBackoff)
}

func TestReasonText(t *testing.T) {
	cases := map[Reason]errcode.Code{
		2:   errcode.LinkAuthExpired,
		202: errcode.LinkAuthFailed,
		203: errcode.LinkAssocFailed,
		204: errcode.LinkHandshakeTimeout,
		15:  errcode.LinkHandshakeTimeout,
		200: errcode.LinkBeaconTimeout,
		201: errcode.LinkAPNotFound,
		205: errcode.LinkConnectFailed,
		8:   errcode.LinkDisconnected,
	}
	for r, want := range cases {
		if got := ReasonText(r); got != want {
			t.Errorf("ReasonText(%d) = %q, want %q", r, got, want)
		}
	}
}
