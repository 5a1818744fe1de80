//go:build !(rp2040 || rp2350)

package logx

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// CapFile is an append-only log file that is truncated once a write would
// take it past Max bytes. It keeps the device's log bounded without rotation.
type CapFile struct {
	mu   sync.Mutex
	path string
	max  int64
	f    *os.File
	size int64
}

func OpenCapFile(path string, max int64) (*CapFile, error) {
	if max <= 0 {
		max = DefaultCapBytes
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logx: open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("logx: stat %s: %w", path, err)
	}
	return &CapFile{path: path, max: max, f: f, size: st.Size()}, nil
}

func (c *CapFile) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.size+int64(len(p)) > c.max {
		if err := c.f.Truncate(0); err != nil {
			return 0, err
		}
		c.size = 0
	}
	n, err := c.f.Write(p)
	c.size += int64(n)
	return n, err
}

// WriteTo copies the current contents to w.
func (c *CapFile) WriteTo(w io.Writer) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := io.NewSectionReader(c.f, 0, c.size)
	return io.Copy(w, r)
}

func (c *CapFile) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *CapFile) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.f.Close()
}
