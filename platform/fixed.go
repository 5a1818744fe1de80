package platform

import (
	"sync"

	"tinygo.org/x/drivers/netlink"

	"sensorbridge-go/services/link"
	"sensorbridge-go/services/scan"
	"sensorbridge-go/types"
)

// FixedRadio is used when the bridge has no wifi of its own to drive. With
// Up set, every connect succeeds at once (a host whose OS owns the network);
// otherwise every connect fails with ReasonNoAPFound. Scans finish empty.
type FixedRadio struct {
	Up bool
	IP string

	mu     sync.Mutex
	notify func(link.Event)
	ssid   string
}

var (
	_ link.Radio   = (*FixedRadio)(nil)
	_ scan.Scanner = (*FixedRadio)(nil)
)

func (f *FixedRadio) SetNotify(fn func(link.Event)) {
	f.mu.Lock()
	f.notify = fn
	f.mu.Unlock()
}

func (f *FixedRadio) Connect(ssid, _ string) error {
	f.mu.Lock()
	f.ssid = ssid
	fn := f.notify
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	// The link manager queues events, so reporting from inside Connect is safe.
	if f.Up {
		fn(link.Event{Kind: netlink.EventNetUp})
	} else {
		fn(link.Event{Kind: netlink.EventNetDown, Reason: link.ReasonNoAPFound})
	}
	return nil
}

func (f *FixedRadio) Disconnect() {}

func (f *FixedRadio) SSID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ssid
}

func (f *FixedRadio) RSSI() int32  { return 0 }
func (f *FixedRadio) Addr() string { return f.IP }

func (f *FixedRadio) StartScan() error { return nil }

func (f *FixedRadio) PollScan() ([]types.ScanEntry, scan.Progress) { return nil, scan.Done }
