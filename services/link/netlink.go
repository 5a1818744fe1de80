package link

import (
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"tinygo.org/x/drivers/netlink"
)

// Netlinker is the subset of netlink.Netlinker the adaptor needs.
type Netlinker interface {
	NetConnect(params *netlink.ConnectParams) error
	NetDisconnect()
	NetNotify(cb func(netlink.Event))
}

var _ Netlinker = (netlink.Netlinker)(nil)

// NetlinkRadio adapts a TinyGo wifi driver to Radio. NetConnect blocks for
// the whole association, so it runs on its own goroutine; its error, if any,
// becomes a link-down event.
type NetlinkRadio struct {
	dev     Netlinker
	timeout time.Duration

	mu      sync.Mutex
	ssid    string
	notify  func(Event)
	leaving atomic.Bool   // deliberate disconnect in progress
	attempt atomic.Uint32 // bumped by every Connect and Disconnect
}

// NewNetlinkRadio wraps dev. timeout bounds each driver connect attempt.
func NewNetlinkRadio(dev Netlinker, timeout time.Duration) *NetlinkRadio {
	r := &NetlinkRadio{dev: dev, timeout: timeout}
	dev.NetNotify(r.onNetEvent)
	return r
}

func (r *NetlinkRadio) SetNotify(fn func(Event)) {
	r.mu.Lock()
	r.notify = fn
	r.mu.Unlock()
}

func (r *NetlinkRadio) emit(ev Event) {
	r.mu.Lock()
	fn := r.notify
	r.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (r *NetlinkRadio) onNetEvent(e netlink.Event) {
	if e == netlink.EventNetDown && r.leaving.Load() {
		return
	}
	r.emit(Event{Kind: e})
}

func (r *NetlinkRadio) Connect(ssid, password string) error {
	r.mu.Lock()
	r.ssid = ssid
	r.mu.Unlock()
	r.leaving.Store(false)
	n := r.attempt.Add(1)

	params := &netlink.ConnectParams{
		ConnectMode:    netlink.ConnectModeSTA,
		Ssid:           ssid,
		Passphrase:     password,
		Retries:        1,
		ConnectTimeout: r.timeout,
	}
	if password == "" {
		params.AuthType = netlink.AuthTypeOpen
	}
	go func() {
		err := r.dev.NetConnect(params)
		if err != nil && r.attempt.Load() == n && !r.leaving.Load() {
			r.emit(Event{Kind: netlink.EventNetDown, Reason: netlinkReason(err)})
		}
	}()
	return nil
}

func (r *NetlinkRadio) Disconnect() {
	r.attempt.Add(1)
	r.leaving.Store(true)
	r.dev.NetDisconnect()
}

func (r *NetlinkRadio) SSID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ssid
}

// RSSI is reported by drivers that expose it; others read 0.
func (r *NetlinkRadio) RSSI() int32 {
	if d, ok := r.dev.(interface{ GetCurrentRSSI() (int32, error) }); ok {
		if v, err := d.GetCurrentRSSI(); err == nil {
			return v
		}
	}
	return 0
}

// Addr is the station address for drivers that also implement netdev.
func (r *NetlinkRadio) Addr() string {
	if d, ok := r.dev.(interface{ Addr() (netip.Addr, error) }); ok {
		if a, err := d.Addr(); err == nil && a.IsValid() {
			return a.String()
		}
	}
	return ""
}

func netlinkReason(err error) Reason {
	switch {
	case errors.Is(err, netlink.ErrAuthFailure), errors.Is(err, netlink.ErrShortPassphrase):
		return ReasonAuthFail
	case errors.Is(err, netlink.ErrConnectTimeout):
		return ReasonHandshakeTimeout
	case errors.Is(err, netlink.ErrMissingSSID):
		return ReasonNoAPFound
	default:
		return ReasonConnectionFail
	}
}
