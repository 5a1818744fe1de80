//go:build rp2040 || rp2350

package platform

import (
	"context"
	"log/slog"
	"machine"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"sensorbridge-go/x/logx"
)

// ScaleBaud is the scale's fixed line rate.
const ScaleBaud = 9600

// UARTPump feeds the decoder from a uartx port. RecvSomeContext parks the
// reader goroutine until bytes arrive, so the tick never waits on the UART.
type UARTPump struct {
	Pump

	u   *uartx.UART
	log *slog.Logger
}

// NewUARTPump configures u for the scale and wraps it.
func NewUARTPump(u *uartx.UART, tx, rx machine.Pin, l *slog.Logger) *UARTPump {
	_ = u.Configure(uartx.UARTConfig{BaudRate: ScaleBaud, TX: tx, RX: rx})
	return &UARTPump{Pump: newPump(DefaultRingSize), u: u, log: logx.Component(l, "serial")}
}

func (p *UARTPump) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 64)
		var delay time.Duration
		for ctx.Err() == nil {
			n, err := p.u.RecvSomeContext(ctx, buf)
			if n > 0 {
				p.feed(buf[:n])
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				delay = reopenDelay(delay)
				p.log.Warn("serial:read-failed", logx.ErrAttr(err))
				if !sleepCtx(ctx, delay) {
					return
				}
				continue
			}
			delay = 0
		}
	}()
	return done
}
