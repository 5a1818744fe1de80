//go:build !(rp2040 || rp2350)

package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"sensorbridge-go/services/config"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

func init() { Dial = dialPaho }

// pahoClient adapts a paho session. Reconnects are left to runLink.
type pahoClient struct {
	c    mqtt.Client
	lost chan error
}

func dialPaho(ctx context.Context, cfg config.MQTT) (Client, error) {
	pc := &pahoClient{lost: make(chan error, 1)}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "sensorbridge-" + uuid.NewString()[:8]
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetWill(cfg.TopicPrefix+"/online", "false", 1, true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		select {
		case pc.lost <- err:
		default:
		}
	})

	pc.c = mqtt.NewClient(opts)
	tok := pc.c.Connect()
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	if err := pc.Publish(cfg.TopicPrefix+"/online", []byte("true"), true); err != nil {
		pc.Close()
		return nil, err
	}
	return pc, nil
}

func (p *pahoClient) Publish(topic string, payload []byte, retained bool) error {
	tok := p.c.Publish(topic, 0, retained, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return errors.New("mqtt publish timeout: " + topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

func (p *pahoClient) Lost() <-chan error { return p.lost }

func (p *pahoClient) Close() { p.c.Disconnect(250) }
