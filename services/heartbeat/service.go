// Package heartbeat drives the cooperative scheduler: it calls the runtime's
// Tick on a fixed period and follows period changes published on
// config/heartbeat.
package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"sensorbridge-go/bus"
	"sensorbridge-go/services/config"
	"sensorbridge-go/x/logx"
	"sensorbridge-go/x/mathx"
)

const (
	DefaultPeriod = 5 * time.Millisecond
	maxPeriod     = 9 * time.Millisecond
)

var topicConfigHeartbeat = config.Topic(config.SectionHeartbeat)

// Ticker is what the heartbeat drives.
type Ticker interface {
	Tick(now time.Time)
}

type Service struct {
	Target Ticker
	Period time.Duration
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time

	ticks uint64
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection, done chan<- struct{}) {
	defer close(done)
	log := logx.Component(s.Logger, "heartbeat")

	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	now := s.Now
	if now == nil {
		now = time.Now
	}
	period := clampPeriod(s.Period)
	tick := time.NewTicker(period)
	defer tick.Stop()

	log.Info("heartbeat:start", slog.Duration("period", period))
	for {
		select {
		case <-ctx.Done():
			log.Info("heartbeat:stop", slog.Uint64("ticks", s.ticks))
			return
		case <-tick.C:
			s.ticks++
			s.Target.Tick(now())
		case msg := <-cfgSub.Channel():
			hb, ok := msg.Payload.(config.Heartbeat)
			if !ok || hb.PeriodMs <= 0 {
				continue
			}
			if p := clampPeriod(time.Duration(hb.PeriodMs) * time.Millisecond); p != period {
				period = p
				tick.Reset(period)
				log.Info("heartbeat:period", slog.Duration("period", period))
			}
		}
	}
}

func clampPeriod(p time.Duration) time.Duration {
	if p <= 0 {
		return DefaultPeriod
	}
	return mathx.Clamp(p, time.Millisecond, maxPeriod)
}

// Start runs the loop in a goroutine. The returned channel closes when the
// loop has exited after ctx is cancelled.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) <-chan struct{} {
	done := make(chan struct{})
	go s.serviceLoop(ctx, conn, done)
	return done
}

// Run blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context, conn *bus.Connection) {
	<-s.Start(ctx, conn)
}
