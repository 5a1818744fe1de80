package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"tinygo.org/x/drivers/netlink"

	"sensorbridge-go/bus"
	"sensorbridge-go/errcode"
	"sensorbridge-go/services/link"
	"sensorbridge-go/services/scan"
	"sensorbridge-go/services/settings"
	"sensorbridge-go/types"
	"sensorbridge-go/x/kv"
	"sensorbridge-go/x/shmring"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return t0.Add(d) }

// fakeRadio is both the station and the scanner.
type fakeRadio struct {
	mu       sync.Mutex
	notify   func(link.Event)
	ssid     string
	connects []string
	started  int
	progress scan.Progress
	found    []types.ScanEntry
}

func (f *fakeRadio) Connect(ssid, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ssid = ssid
	f.connects = append(f.connects, ssid)
	return nil
}

func (f *fakeRadio) Disconnect() {
	f.mu.Lock()
	f.ssid = ""
	f.mu.Unlock()
}

func (f *fakeRadio) SSID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ssid
}

func (f *fakeRadio) RSSI() int32                   { return -50 }
func (f *fakeRadio) Addr() string                  { return "192.168.1.20" }
func (f *fakeRadio) SetNotify(fn func(link.Event)) { f.notify = fn }

func (f *fakeRadio) StartScan() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	f.progress = scan.Running
	return nil
}

func (f *fakeRadio) PollScan() ([]types.ScanEntry, scan.Progress) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.found, f.progress
}

func (f *fakeRadio) up()                { f.notify(link.Event{Kind: netlink.EventNetUp}) }
func (f *fakeRadio) down(r link.Reason) { f.notify(link.Event{Kind: netlink.EventNetDown, Reason: r}) }

func (f *fakeRadio) finishScan(e ...types.ScanEntry) {
	f.mu.Lock()
	f.found, f.progress = e, scan.Done
	f.mu.Unlock()
}

type fakePoster struct {
	mu     sync.Mutex
	bodies []string
}

func (p *fakePoster) Post(_ context.Context, body, _ string) (int, string, error) {
	p.mu.Lock()
	p.bodies = append(p.bodies, body)
	p.mu.Unlock()
	return 200, "", nil
}

type harness struct {
	rt     *Runtime
	radio  *fakeRadio
	poster *fakePoster
	mem    *kv.Memory
	serial *shmring.Ring
	sub    *bus.Subscription
}

func newHarness(t *testing.T, opt Options) *harness {
	t.Helper()
	h := &harness{
		radio:  &fakeRadio{},
		poster: &fakePoster{},
		mem:    kv.NewMemory(),
		serial: shmring.New(512),
	}
	b := bus.NewBus(64)
	h.sub = b.NewConnection("test").Subscribe(TopicStatus)
	h.rt = New(Deps{
		Radio:    h.radio,
		Scanner:  h.radio,
		ScanBlob: &scan.MemoryBlob{},
		Serial:   h.serial,
		Poster:   h.poster,
		Settings: settings.NewStore(h.mem, nil, "factory-token"),
		Bus:      b,
	}, opt)
	t.Cleanup(func() { h.rt.Close(context.Background()) })
	return h
}

// reasons drains the status messages published so far.
func (h *harness) reasons() []string {
	var out []string
	for {
		select {
		case m := <-h.sub.Channel():
			out = append(out, m.Payload.(types.Status).Reason)
		default:
			return out
		}
	}
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func TestScenario_ConnectFromIdle(t *testing.T) {
	h := newHarness(t, Options{APSSID: "Scale-Setup", APIP: "192.168.4.1"})
	h.rt.Boot(context.Background(), t0)

	st := h.rt.Snapshot()
	if st.WifiState != "idle" || st.STAHasSavedCreds {
		t.Fatalf("boot status = %+v", st)
	}
	if r := h.reasons(); len(r) != 1 || r[0] != ReasonBoot {
		t.Fatalf("boot reasons = %v", r)
	}

	if err := h.rt.RequestConnect("Home", "password1"); err != nil {
		t.Fatal(err)
	}
	h.rt.Tick(at(5 * time.Millisecond))
	if st := h.rt.Snapshot(); !st.STAConnecting || st.WifiState != "connecting" || st.STASSID != "Home" {
		t.Fatalf("after connect request: %+v", st)
	}
	if !contains(h.reasons(), link.EvConnectRequested) {
		t.Fatal("connect request not published")
	}

	h.radio.up()
	h.rt.Tick(at(2 * time.Second))
	st = h.rt.Snapshot()
	if !st.STAConnected || st.WifiBackoffMs != 15000 || st.STAIP != "192.168.1.20" || st.RSSI != -50 {
		t.Fatalf("after link-up: %+v", st)
	}
	r := h.reasons()
	if !contains(r, link.EvConnected) || !contains(r, ReasonHeartbeat) {
		t.Fatalf("reasons = %v", r)
	}
	if st.APSSID != "Scale-Setup" || st.APIP != "192.168.4.1" || st.UptimeSeconds != 2 {
		t.Fatalf("static fields: %+v", st)
	}

	saved, _ := h.mem.Get(context.Background(), kv.Key{"config", "ssid"})
	if string(saved) != "Home" {
		t.Fatalf("ssid persisted as %q", saved)
	}
}

func TestScenario_AuthExpiredReconnects(t *testing.T) {
	h := newHarness(t, Options{})
	h.rt.Boot(context.Background(), t0)
	h.rt.RequestConnect("Home", "password1")
	h.rt.Tick(at(0))
	h.radio.up()
	h.rt.Tick(at(time.Second))

	h.radio.down(link.ReasonAuthExpire)
	h.rt.Tick(at(10 * time.Second))
	st := h.rt.Snapshot()
	if st.WifiState != "backoff" || st.WifiLastError != "auth-expired" || st.WifiLastDisconnect != 2 {
		t.Fatalf("after down: %+v", st)
	}
	if st.WifiNextAttemptInMs != st.WifiBackoffMs || st.WifiBackoffMs != 30000 {
		t.Fatalf("backoff fields: %+v", st)
	}
	if !contains(h.reasons(), link.EvDisconnected) {
		t.Fatal("disconnect not published")
	}

	h.rt.Tick(at(10*time.Second + 30*time.Second))
	if st := h.rt.Snapshot(); st.WifiState != "connecting" {
		t.Fatalf("no automatic reconnect: %+v", st)
	}
	if len(h.radio.connects) != 2 {
		t.Fatalf("connects = %v", h.radio.connects)
	}
}

func TestBoot_WithSavedCredentialsConnects(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	h.mem.Set(ctx, kv.Key{"config", "ssid"}, []byte("Office"))
	h.mem.Set(ctx, kv.Key{"config", "upl_ms"}, []byte("2000"))

	h.rt.Boot(ctx, t0)
	if s := h.rt.Settings(); s.UploadInterval != 2*time.Second || s.UploadToken != "factory-token" {
		t.Fatalf("settings = %+v", s)
	}
	h.rt.Tick(at(0))
	if st := h.rt.Snapshot(); st.WifiState != "connecting" || st.UploadIntervalMs != 2000 || !st.UploadTokenConfigured {
		t.Fatalf("status = %+v", st)
	}
}

func TestTick_ReadingUploadedSameTick(t *testing.T) {
	h := newHarness(t, Options{})
	h.rt.Boot(context.Background(), t0)
	h.rt.RequestConnect("Home", "")
	h.rt.Tick(at(0))
	h.radio.up()

	h.serial.Write([]byte("garbage ww012.345kg\r\n"))
	h.rt.Tick(at(time.Second))

	rd := h.rt.Reading()
	if !rd.HasValue || rd.Raw != "ww012.345kg" {
		t.Fatalf("reading = %+v", rd)
	}
	if st := h.rt.Snapshot(); !st.WeightAvailable || st.WeightValue != 12.345 || st.LastUploadAttemptMs != at(time.Second).UnixMilli() {
		t.Fatalf("status = %+v", st)
	}

	deadline := time.Now().Add(time.Second)
	for !contains(h.reasons(), ReasonUploaded) {
		if time.Now().After(deadline) {
			t.Fatal("upload never completed")
		}
		time.Sleep(time.Millisecond)
		h.rt.Tick(at(1500 * time.Millisecond))
	}
	h.poster.mu.Lock()
	defer h.poster.mu.Unlock()
	if len(h.poster.bodies) != 1 || h.poster.bodies[0] != "12.345" {
		t.Fatalf("bodies = %v", h.poster.bodies)
	}
	if st := h.rt.Snapshot(); st.LastUploadCode != 200 || st.LastUploadResponse != "ok" {
		t.Fatalf("outcome = %+v", st)
	}
}

func TestTick_UndecodableLineKeepsValue(t *testing.T) {
	h := newHarness(t, Options{})
	h.rt.Boot(context.Background(), t0)
	h.serial.Write([]byte("ww001.500kg\n"))
	h.rt.Tick(at(0))
	h.serial.Write([]byte("OVERLOAD\n"))
	h.rt.Tick(at(time.Second))

	st := h.rt.Snapshot()
	if st.WeightRaw != "OVERLOAD" || !st.WeightAvailable || st.WeightValue != 1.5 {
		t.Fatalf("status = %+v", st)
	}
	if st.WeightLastReadMs != at(time.Second).UnixMilli() {
		t.Fatalf("last read = %d", st.WeightLastReadMs)
	}
}

func TestCommands_Validation(t *testing.T) {
	h := newHarness(t, Options{})
	cases := []error{
		h.rt.RequestConnect("  ", "password1"),
		h.rt.RequestConnect("Home", "short"),
		h.rt.UpdateSettings(999, "tok"),
		h.rt.UpdateSettings(5000, ""),
	}
	for i, err := range cases {
		if errcode.Of(err) != errcode.InvalidParams {
			t.Errorf("case %d: err = %v", i, err)
		}
	}
}

func TestCommands_QueueFull(t *testing.T) {
	h := newHarness(t, Options{QueueLen: 1})
	if err := h.rt.RequestDisconnect(); err != nil {
		t.Fatal(err)
	}
	if err := h.rt.RequestDisconnect(); errcode.Of(err) != errcode.Busy {
		t.Fatalf("err = %v, want busy", err)
	}
}

func TestUpdateSettings_AppliedAndPersisted(t *testing.T) {
	h := newHarness(t, Options{})
	h.rt.Boot(context.Background(), t0)
	h.reasons()

	if err := h.rt.UpdateSettings(10000, "Bearer abc"); err != nil {
		t.Fatal(err)
	}
	h.rt.Tick(at(0))
	if st := h.rt.Snapshot(); st.UploadIntervalMs != 10000 {
		t.Fatalf("status = %+v", st)
	}
	if !contains(h.reasons(), ReasonSettingsUpdated) {
		t.Fatal("settings-updated not published")
	}
	tok, _ := h.mem.Get(context.Background(), kv.Key{"config", "upl_tok"})
	ms, _ := h.mem.Get(context.Background(), kv.Key{"config", "upl_ms"})
	if string(tok) != "abc" || string(ms) != "10000" {
		t.Fatalf("persisted tok=%q ms=%q", tok, ms)
	}
}

func TestUpdateSettings_PersistFailureKeepsMemory(t *testing.T) {
	h := newHarness(t, Options{})
	h.rt.Boot(context.Background(), t0)
	h.mem.FailWrites = true

	h.rt.UpdateSettings(2000, "abc")
	h.rt.RequestConnect("Home", "password1")
	h.rt.Tick(at(0))

	if s := h.rt.Settings(); s.UploadInterval != 2*time.Second || s.SSID != "Home" {
		t.Fatalf("settings = %+v", s)
	}
	if st := h.rt.Snapshot(); st.WifiState != "connecting" {
		t.Fatalf("status = %+v", st)
	}
}

func TestRequestDisconnect_Forgets(t *testing.T) {
	h := newHarness(t, Options{})
	h.rt.Boot(context.Background(), t0)
	h.rt.RequestConnect("Home", "password1")
	h.rt.Tick(at(0))
	h.radio.up()
	h.rt.Tick(at(time.Second))
	h.reasons()

	h.rt.RequestDisconnect()
	h.rt.Tick(at(2 * time.Second))
	st := h.rt.Snapshot()
	if st.STAConnected || st.STAHasSavedCreds || st.WifiLastError != "credentials-cleared" {
		t.Fatalf("status = %+v", st)
	}
	if !contains(h.reasons(), ReasonForgotten) {
		t.Fatal("wifi-forgotten not published")
	}
	if _, err := h.mem.Get(context.Background(), kv.Key{"config", "ssid"}); err != kv.ErrNotFound {
		t.Fatalf("ssid still stored: %v", err)
	}
}

func TestScan_RequestPollComplete(t *testing.T) {
	h := newHarness(t, Options{})
	h.rt.Boot(context.Background(), t0)

	h.rt.RequestScan(false)
	if _, inProgress, _ := h.rt.Networks(); !inProgress {
		t.Fatal("queued scan not reported as in progress")
	}
	h.rt.Tick(at(0))
	if h.radio.started != 1 || !h.rt.Snapshot().WifiScanInProgress {
		t.Fatalf("scan not started: %d", h.radio.started)
	}

	h.radio.finishScan(
		types.ScanEntry{SSID: "Home", RSSI: -70},
		types.ScanEntry{SSID: "Cafe", RSSI: -40, Open: true},
		types.ScanEntry{SSID: "Home", RSSI: -55},
	)
	h.rt.Tick(at(2 * time.Second))
	if !contains(h.reasons(), ReasonScanComplete) {
		t.Fatal("scan-complete not published")
	}
	nets, inProgress, last := h.rt.Networks()
	if inProgress || !last.Equal(at(2*time.Second)) || len(nets) != 2 {
		t.Fatalf("networks = %v %v %v", nets, inProgress, last)
	}
	if nets[0].SSID != "Cafe" || nets[1].RSSI != -55 {
		t.Fatalf("networks = %+v", nets)
	}
	if st := h.rt.Snapshot(); st.WifiScanResultCount != 2 || st.WifiScanLastMs != at(2*time.Second).UnixMilli() {
		t.Fatalf("status = %+v", st)
	}

	// Fresh cache: an unforced request does not rescan, and is not
	// reported as scanning either.
	h.rt.RequestScan(false)
	if _, inProgress, _ := h.rt.Networks(); inProgress {
		t.Fatal("fresh cache reported as scanning")
	}
	h.rt.Tick(at(3 * time.Second))
	if h.radio.started != 1 {
		t.Fatalf("rescanned a fresh cache: %d", h.radio.started)
	}

	// Freshness follows the tick clock: at 40 s the cache is stale.
	h.rt.Tick(at(40 * time.Second))
	h.rt.RequestScan(false)
	if _, inProgress, _ := h.rt.Networks(); !inProgress {
		t.Fatal("stale cache request not reported as scanning")
	}
	h.rt.Tick(at(41 * time.Second))
	if h.radio.started != 2 {
		t.Fatalf("stale cache not rescanned: %d", h.radio.started)
	}
}

func TestHeartbeatCadence(t *testing.T) {
	h := newHarness(t, Options{Heartbeat: time.Second})
	h.rt.Boot(context.Background(), t0)
	h.reasons()

	beats := 0
	for ms := 5; ms <= 3000; ms += 5 {
		h.rt.Tick(at(time.Duration(ms) * time.Millisecond))
		for _, r := range h.reasons() {
			if r == ReasonHeartbeat {
				beats++
			}
		}
	}
	if beats != 3 {
		t.Fatalf("beats = %d, want 3", beats)
	}
}
