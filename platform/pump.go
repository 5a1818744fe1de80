// Package platform binds the bridge core to real or simulated hardware: the
// scale's serial byte source and, on the host, a simulated radio.
package platform

import (
	"context"
	"time"

	"sensorbridge-go/x/mathx"
	"sensorbridge-go/x/shmring"
)

// DefaultRingSize holds several seconds of scale output at 9600 baud.
const DefaultRingSize = 4096

const (
	reopenMin = 500 * time.Millisecond
	reopenMax = 10 * time.Second
)

// Pump is a decoder.Source fed by a reader goroutine. Reads never block;
// bytes arriving while the ring is full are dropped and counted.
type Pump struct {
	ring *shmring.Ring
}

func newPump(size int) Pump {
	if size <= 0 {
		size = DefaultRingSize
	}
	return Pump{ring: shmring.New(size)}
}

func (p *Pump) Buffered() int              { return p.ring.Buffered() }
func (p *Pump) Read(b []byte) (int, error) { return p.ring.Read(b) }
func (p *Pump) Dropped() uint64            { return p.ring.Dropped() }

// Readable fires when bytes become available.
func (p *Pump) Readable() <-chan struct{} { return p.ring.Readable() }

func (p *Pump) feed(b []byte) {
	_, _ = p.ring.Write(b)
}

// reopenDelay returns the next delay in a doubling sequence.
func reopenDelay(cur time.Duration) time.Duration {
	if cur <= 0 {
		return reopenMin
	}
	return mathx.Double(cur, reopenMax)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
