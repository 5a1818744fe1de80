//go:build !(rp2040 || rp2350)

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

type fakeSource struct {
	data     []byte
	readable chan struct{}
}

func (f *fakeSource) Buffered() int { return len(f.data) }

func (f *fakeSource) Read(p []byte) (int, error) {
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func (f *fakeSource) Readable() <-chan struct{} { return f.readable }
func (f *fakeSource) Dropped() uint64           { return 3 }

func TestTap_PrintsReadingsAndStats(t *testing.T) {
	src := &fakeSource{data: []byte("ww012.345kg\r\nOVERLOAD\n"), readable: make(chan struct{})}
	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	tap(ctx, src, &out, 20*time.Millisecond)

	got := out.String()
	for _, want := range []string{`"ww012.345kg"`, "12.345", `"OVERLOAD"`, "(no value)", "# lines=2 valued=1 overflows=0 dropped=3"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}
