package scan

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sensorbridge-go/types"
	"sensorbridge-go/x/logx"
)

// Blob stores the single persisted scan record. Load returns an error
// satisfying errors.Is(err, fs.ErrNotExist) when nothing has been saved.
type Blob interface {
	Load() ([]byte, error)
	Save([]byte) error
	Remove() error
}

// record is the on-disk shape: {"last_scan_ms":..., "networks":[...]}.
type record struct {
	LastScanMs int64             `json:"last_scan_ms"`
	Networks   []types.ScanEntry `json:"networks"`
}

// looseRecord defers entry decoding so one bad element is skipped alone.
type looseRecord struct {
	LastScanMs json.RawMessage   `json:"last_scan_ms"`
	Networks   []json.RawMessage `json:"networks"`
}

func (c *Cache) save() error {
	if c.blob == nil {
		return nil
	}
	b, err := json.Marshal(record{
		LastScanMs: types.UnixMs(c.lastDone),
		Networks:   c.entries,
	})
	if err != nil {
		return fmt.Errorf("scan: encode: %w", err)
	}
	return c.blob.Save(b)
}

// Load hydrates the cache from the blob. A missing blob leaves the cache
// empty; an unreadable or malformed one is removed. Entries are validated
// one by one: a non-string or blank ssid is skipped, a missing rssi reads
// as -100 and a missing open flag as false.
func (c *Cache) Load() {
	if c.blob == nil {
		return
	}
	b, err := c.blob.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	var rec looseRecord
	if err == nil {
		err = json.Unmarshal(b, &rec)
	}
	if err != nil {
		c.log.Warn("scan:cache-invalid", logx.ErrAttr(err))
		if rerr := c.blob.Remove(); rerr != nil {
			c.log.Warn("scan:cache-remove-failed", logx.ErrAttr(rerr))
		}
		return
	}

	var loaded []types.ScanEntry
	for _, n := range rec.Networks {
		if e, ok := decodeEntry(n); ok {
			loaded = append(loaded, e)
		}
	}
	c.entries = Dedupe(loaded)
	c.lastDone = time.Time{}
	var ms int64
	if len(c.entries) > 0 && json.Unmarshal(rec.LastScanMs, &ms) == nil && ms > 0 {
		c.lastDone = time.UnixMilli(ms)
	}
	c.log.Info("scan:restored", slog.Int("networks", len(c.entries)))
}

func decodeEntry(raw json.RawMessage) (types.ScanEntry, bool) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return types.ScanEntry{}, false
	}
	var ssid string
	if err := json.Unmarshal(m["ssid"], &ssid); err != nil {
		return types.ScanEntry{}, false
	}
	if ssid = strings.TrimSpace(ssid); ssid == "" {
		return types.ScanEntry{}, false
	}
	e := types.ScanEntry{SSID: ssid, RSSI: -100}
	if raw, ok := m["rssi"]; ok {
		var v int32
		if json.Unmarshal(raw, &v) == nil {
			e.RSSI = v
		}
	}
	if raw, ok := m["open"]; ok {
		var v bool
		if json.Unmarshal(raw, &v) == nil {
			e.Open = v
		}
	}
	return e, true
}

// FileBlob keeps the record in a single file, written via a temp file and
// rename.
type FileBlob struct{ Path string }

func (f FileBlob) Load() ([]byte, error) { return os.ReadFile(f.Path) }

func (f FileBlob) Save(b []byte) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return err
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.Path)
}

func (f FileBlob) Remove() error {
	err := os.Remove(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// MemoryBlob is a Blob held in memory, for MCU builds without a
// filesystem and for tests.
type MemoryBlob struct {
	mu      sync.Mutex
	data    []byte
	present bool
	SaveErr error
}

func (m *MemoryBlob) Load() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.present {
		return nil, fs.ErrNotExist
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemoryBlob) Save(b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.data = append([]byte(nil), b...)
	m.present = true
	return nil
}

func (m *MemoryBlob) Remove() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data, m.present = nil, false
	return nil
}

// Present reports whether a record is stored.
func (m *MemoryBlob) Present() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.present
}
