package link

import (
	"errors"
	"sync"
	"testing"
	"time"

	"tinygo.org/x/drivers/netlink"
)

// fakeNetlinker stands in for a TinyGo wifi driver.
type fakeNetlinker struct {
	mu         sync.Mutex
	cb         func(netlink.Event)
	params     *netlink.ConnectParams
	connectErr error
	done       chan struct{}
}

func (f *fakeNetlinker) NetConnect(p *netlink.ConnectParams) error {
	f.mu.Lock()
	f.params = p
	err := f.connectErr
	cb := f.cb
	f.mu.Unlock()
	if err == nil {
		cb(netlink.EventNetUp)
	}
	close(f.done)
	return err
}

func (f *fakeNetlinker) NetDisconnect() {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	cb(netlink.EventNetDown)
}

func (f *fakeNetlinker) NetNotify(cb func(netlink.Event)) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func collect(r *NetlinkRadio) chan Event {
	ch := make(chan Event, 8)
	r.SetNotify(func(ev Event) { ch <- ev })
	return ch
}

func waitEvent(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func TestNetlinkRadio_ConnectUp(t *testing.T) {
	dev := &fakeNetlinker{done: make(chan struct{})}
	r := NewNetlinkRadio(dev, 10*time.Second)
	ch := collect(r)

	if err := r.Connect("Home", ""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if ev := waitEvent(t, ch); ev.Kind != netlink.EventNetUp {
		t.Fatalf("event = %+v", ev)
	}
	<-dev.done
	dev.mu.Lock()
	p := dev.params
	dev.mu.Unlock()
	if p.Ssid != "Home" || p.AuthType != netlink.AuthTypeOpen || p.ConnectTimeout != 10*time.Second {
		t.Fatalf("params = %+v", p)
	}
	if r.SSID() != "Home" || r.Addr() != "" || r.RSSI() != 0 {
		t.Fatalf("ssid=%q addr=%q rssi=%d", r.SSID(), r.Addr(), r.RSSI())
	}
}

func TestNetlinkRadio_ConnectErrorBecomesLinkDown(t *testing.T) {
	dev := &fakeNetlinker{done: make(chan struct{}), connectErr: netlink.ErrAuthFailure}
	r := NewNetlinkRadio(dev, 0)
	ch := collect(r)

	r.Connect("Home", "wrongpass")
	ev := waitEvent(t, ch)
	if ev.Kind != netlink.EventNetDown || ev.Reason != ReasonAuthFail {
		t.Fatalf("event = %+v", ev)
	}
}

func TestNetlinkRadio_DeliberateDisconnectIsSilent(t *testing.T) {
	dev := &fakeNetlinker{done: make(chan struct{})}
	r := NewNetlinkRadio(dev, 0)
	ch := collect(r)
	r.Connect("Home", "password1")
	waitEvent(t, ch)

	r.Disconnect()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

// slowNetlinker fails each connect only when its release channel fires.
type slowNetlinker struct {
	release chan error
}

func (f *slowNetlinker) NetConnect(*netlink.ConnectParams) error { return <-f.release }
func (f *slowNetlinker) NetDisconnect()                          {}
func (f *slowNetlinker) NetNotify(func(netlink.Event))           {}

func TestNetlinkRadio_SupersededAttemptIsSilent(t *testing.T) {
	dev := &slowNetlinker{release: make(chan error)}
	r := NewNetlinkRadio(dev, 0)
	ch := collect(r)

	r.Connect("Home", "password1")
	r.Disconnect()
	r.Connect("Office", "password2")

	// Both attempts fail; only the current one may report.
	dev.release <- netlink.ErrConnectTimeout
	dev.release <- netlink.ErrAuthFailure
	ev := waitEvent(t, ch)
	select {
	case extra := <-ch:
		t.Fatalf("extra event %+v after %+v", extra, ev)
	case <-time.After(50 * time.Millisecond):
	}
	if ev.Kind != netlink.EventNetDown {
		t.Fatalf("event = %+v", ev)
	}
}

func TestNetlinkReason(t *testing.T) {
	cases := []struct {
		err  error
		want Reason
	}{
		{netlink.ErrAuthFailure, ReasonAuthFail},
		{netlink.ErrShortPassphrase, ReasonAuthFail},
		{netlink.ErrConnectTimeout, ReasonHandshakeTimeout},
		{netlink.ErrMissingSSID, ReasonNoAPFound},
		{errors.New("spi fault"), ReasonConnectionFail},
	}
	for _, c := range cases {
		if got := netlinkReason(c.err); got != c.want {
			t.Errorf("netlinkReason(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
