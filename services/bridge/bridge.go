// Package bridge mirrors the device status onto an MQTT broker. It waits for
// its settings on config/mqtt, supervises one broker session at a time and
// forwards every status message to <prefix>/status.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sensorbridge-go/bus"
	"sensorbridge-go/services/config"
	"sensorbridge-go/x/logx"
)

var (
	topicConfig = config.Topic(config.SectionMQTT)
	topicStatus = bus.T("status")
	topicState  = bus.T("bridge", "state")
)

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Start runs the bridge service. It blocks until ctx is cancelled.
func Start(ctx context.Context, conn *bus.Connection, l *slog.Logger) {
	s := &Service{
		conn: conn,
		log:  logx.Component(l, "bridge"),
	}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Broker client
// -----------------------------------------------------------------------------

// Client is the part of an MQTT session the mirror needs.
type Client interface {
	Publish(topic string, payload []byte, retained bool) error
	// Lost delivers the error that ended the session.
	Lost() <-chan error
	Close()
}

// Dial opens a broker session. Host builds install the paho client; tests
// and other platforms inject their own.
var Dial func(ctx context.Context, cfg config.MQTT) (Client, error)

var errNoDial = errors.New("bridge: no MQTT dialer")

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn *bus.Connection
	log  *slog.Logger

	mu     sync.Mutex
	curRun context.CancelFunc
}

// run waits for config and supervises a single session.
func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg config.MQTT) {
	s.stopCurrent()
	if cfg.Broker == "" {
		s.publishState("idle", "disabled", nil)
		return
	}

	s.mu.Lock()
	ctx, cancel := context.WithCancel(parent)
	s.curRun = cancel
	s.mu.Unlock()

	go s.runLink(ctx, cfg)
}

// -----------------------------------------------------------------------------
// Session supervision
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg config.MQTT) {
	if Dial == nil {
		s.publishState("error", "transport_init_failed", errNoDial)
		return
	}

	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c, err := Dial(ctx, cfg)
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%w (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		s.publishState("up", "link_established", nil)
		err = s.handleLink(ctx, c, cfg.TopicPrefix)
		c.Close()
		if err == nil {
			return
		}
		delay := backoff()
		s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%w (retry in %s)", err, delay))
		if !sleep(ctx, delay) {
			return
		}
	}
}

// handleLink forwards status messages until ctx ends (nil) or the session
// is lost (the cause).
func (s *Service) handleLink(ctx context.Context, c Client, prefix string) error {
	sub := s.conn.Subscribe(topicStatus)
	defer s.conn.Unsubscribe(sub)

	topic := prefix + "/status"
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-c.Lost():
			if err == nil {
				err = errors.New("session closed")
			}
			return err
		case msg, ok := <-sub.Channel():
			if !ok {
				return nil
			}
			b, err := json.Marshal(msg.Payload)
			if err != nil {
				s.log.Warn("bridge:encode-failed", logx.ErrAttr(err))
				continue
			}
			if err := c.Publish(topic, b, true); err != nil {
				return err
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func decodeConfig(p any) (config.MQTT, error) {
	switch v := p.(type) {
	case config.MQTT:
		return v, nil
	case *config.MQTT:
		if v != nil {
			return *v, nil
		}
	}
	return config.MQTT{}, fmt.Errorf("unsupported config payload type: %T", p)
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,  // "up", "degraded", "error", "idle"
		"status": status, // short machine string
		"ts_ms":  time.Now().UnixMilli(),
	}
	if err != nil {
		payload["error"] = err.Error()
		s.log.Warn("bridge:"+status, logx.ErrAttr(err))
	} else {
		s.log.Info("bridge:" + status)
	}
	s.conn.Publish(s.conn.NewMessage(topicState, payload, true))
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	cur := min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
