//go:build !(rp2040 || rp2350)

package platform

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/tarm/serial"

	"sensorbridge-go/x/logx"
)

const serialReadTimeout = 250 * time.Millisecond

// SerialPump reads a host serial port on its own goroutine and makes the
// bytes available to the decoder without blocking. A port that fails to
// open or errors mid-stream is reopened with a doubling delay.
type SerialPump struct {
	Pump

	port string
	baud int
	log  *slog.Logger
	open func(port string, baud int) (io.ReadCloser, error)
}

func NewSerialPump(port string, baud int, l *slog.Logger) *SerialPump {
	if baud <= 0 {
		baud = 9600
	}
	return &SerialPump{
		Pump: newPump(DefaultRingSize),
		port: port,
		baud: baud,
		log:  logx.Component(l, "serial"),
		open: openSerial,
	}
}

func openSerial(port string, baud int) (io.ReadCloser, error) {
	return serial.OpenPort(&serial.Config{Name: port, Baud: baud, ReadTimeout: serialReadTimeout})
}

// Start runs the reader until ctx is cancelled. The returned channel closes
// when the reader has exited and the port is closed.
func (p *SerialPump) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.run(ctx)
	}()
	return done
}

func (p *SerialPump) run(ctx context.Context) {
	var delay time.Duration
	for ctx.Err() == nil {
		rc, err := p.open(p.port, p.baud)
		if err != nil {
			delay = reopenDelay(delay)
			p.log.Warn("serial:open-failed", slog.String("port", p.port), slog.Duration("retry_in", delay), logx.ErrAttr(err))
			if !sleepCtx(ctx, delay) {
				return
			}
			continue
		}
		p.log.Info("serial:opened", slog.String("port", p.port), slog.Int("baud", p.baud))
		delay = 0

		err = p.stream(ctx, rc)
		_ = rc.Close()
		if ctx.Err() != nil {
			return
		}
		delay = reopenDelay(delay)
		p.log.Warn("serial:read-failed", slog.String("port", p.port), slog.Duration("retry_in", delay), logx.ErrAttr(err))
		if !sleepCtx(ctx, delay) {
			return
		}
	}
}

// stream copies until a read error or cancellation. A read timeout with no
// data returns (0, nil) from tarm/serial and is not an error.
func (p *SerialPump) stream(ctx context.Context, rc io.ReadCloser) error {
	buf := make([]byte, 256)
	stop := context.AfterFunc(ctx, func() { _ = rc.Close() })
	defer stop()
	for {
		n, err := rc.Read(buf)
		if n > 0 {
			p.feed(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) && ctx.Err() == nil {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
}
