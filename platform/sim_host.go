//go:build !(rp2040 || rp2350)

package platform

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/drivers/netlink"

	"sensorbridge-go/services/config"
	"sensorbridge-go/services/link"
	"sensorbridge-go/services/scan"
	"sensorbridge-go/types"
	"sensorbridge-go/x/logx"
)

const (
	simScanDelay = 1500 * time.Millisecond
	simAddr      = "192.168.1.50"
	simRSSI      = -48
)

// SimRadio is a host stand-in for the wifi chip. It implements link.Radio
// and scan.Scanner; outcomes arrive from timer goroutines just as a real
// driver's callbacks would.
type SimRadio struct {
	log       *slog.Logger
	networks  []types.ScanEntry
	delay     time.Duration
	scanDelay time.Duration
	fail      link.Reason

	mu       sync.Mutex
	notify   func(link.Event)
	ssid     string
	up       bool
	gen      uint64 // invalidates pending connect timers
	scanning bool
	scanDone bool
}

var (
	_ link.Radio   = (*SimRadio)(nil)
	_ scan.Scanner = (*SimRadio)(nil)
)

// ErrScanBusy is returned by StartScan while a scan is running.
var ErrScanBusy = errors.New("sim: scan already running")

func NewSimRadio(cfg config.Sim, l *slog.Logger) *SimRadio {
	nets := make([]types.ScanEntry, 0, len(cfg.Networks))
	for _, n := range cfg.Networks {
		nets = append(nets, types.ScanEntry{SSID: n.SSID, RSSI: n.RSSI, Open: n.Open})
	}
	return &SimRadio{
		log:       logx.Component(l, "sim"),
		networks:  nets,
		delay:     time.Duration(cfg.LinkDelayMs) * time.Millisecond,
		scanDelay: simScanDelay,
		fail:      link.Reason(cfg.FailReason),
	}
}

func (s *SimRadio) SetNotify(fn func(link.Event)) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

// Connect succeeds after the link delay when ssid is one of the simulated
// networks and no failure reason is configured; otherwise it reports a
// link-down.
func (s *SimRadio) Connect(ssid, password string) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.ssid = ssid
	s.up = false
	ok := s.fail == 0 && s.known(ssid, password)
	s.mu.Unlock()

	s.log.Debug("sim:connect", slog.String("ssid", ssid), slog.Bool("will_succeed", ok))
	time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.up = ok
		fn := s.notify
		s.mu.Unlock()
		if fn == nil {
			return
		}
		if ok {
			fn(link.Event{Kind: netlink.EventNetUp})
			return
		}
		fn(link.Event{Kind: netlink.EventNetDown, Reason: s.failReason(ssid)})
	})
	return nil
}

// known reports whether ssid is simulated and the password fits its
// security. Callers hold s.mu.
func (s *SimRadio) known(ssid, password string) bool {
	for _, n := range s.networks {
		if n.SSID == ssid {
			return n.Open || password != ""
		}
	}
	return false
}

func (s *SimRadio) failReason(ssid string) link.Reason {
	if s.fail != 0 {
		return s.fail
	}
	for _, n := range s.networks {
		if n.SSID == ssid {
			return link.ReasonAuthFail
		}
	}
	return link.ReasonNoAPFound
}

func (s *SimRadio) Disconnect() {
	s.mu.Lock()
	s.gen++
	s.up = false
	s.mu.Unlock()
}

// Drop simulates the access point going away while connected.
func (s *SimRadio) Drop(reason link.Reason) {
	s.mu.Lock()
	wasUp := s.up
	s.up = false
	fn := s.notify
	s.mu.Unlock()
	if wasUp && fn != nil {
		fn(link.Event{Kind: netlink.EventNetDown, Reason: reason})
	}
}

func (s *SimRadio) SSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ssid
}

func (s *SimRadio) RSSI() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.up {
		return 0
	}
	for _, n := range s.networks {
		if n.SSID == s.ssid {
			return n.RSSI
		}
	}
	return simRSSI
}

func (s *SimRadio) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.up {
		return ""
	}
	return simAddr
}

func (s *SimRadio) StartScan() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanning {
		return ErrScanBusy
	}
	s.scanning, s.scanDone = true, false
	time.AfterFunc(s.scanDelay, func() {
		s.mu.Lock()
		s.scanDone = true
		s.mu.Unlock()
	})
	return nil
}

func (s *SimRadio) PollScan() ([]types.ScanEntry, scan.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.scanning || !s.scanDone {
		return nil, scan.Running
	}
	s.scanning = false
	out := make([]types.ScanEntry, len(s.networks))
	copy(out, s.networks)
	return out, scan.Done
}
