// Package config holds the bridge's boot configuration and publishes each
// section as a retained message on config/<section>, so services can pick
// up their settings from the bus.
package config

import (
	"context"
	"log/slog"

	"sensorbridge-go/bus"
	"sensorbridge-go/x/logx"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
)

// Section names, also the topic tails under config/.
const (
	SectionLog       = "log"
	SectionSerial    = "serial"
	SectionUpload    = "upload"
	SectionAPI       = "api"
	SectionMQTT      = "mqtt"
	SectionHeartbeat = "heartbeat"
	SectionSim       = "sim"
)

// Topic returns the retained topic for a section.
func Topic(section string) bus.Topic { return bus.T(configPrefix, section) }

// -----------------------------------------------------------------------------
// Sections
// -----------------------------------------------------------------------------

type Config struct {
	Device    string    `yaml:"device"`
	DataDir   string    `yaml:"data_dir"`
	Log       Log       `yaml:"log"`
	Serial    Serial    `yaml:"serial"`
	Upload    Upload    `yaml:"upload"`
	API       API       `yaml:"api"`
	MQTT      MQTT      `yaml:"mqtt"`
	Heartbeat Heartbeat `yaml:"heartbeat"`
	Sim       Sim       `yaml:"sim"`
}

type Log struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	File         string `yaml:"file"`
	FileMaxBytes int64  `yaml:"file_max_bytes"`
}

type Serial struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

type Upload struct {
	URL          string `yaml:"url"`
	DefaultToken string `yaml:"default_token"`
	InsecureTLS  bool   `yaml:"insecure_tls"`
	TimeoutMs    int    `yaml:"timeout_ms"`
}

type API struct {
	Listen string `yaml:"listen"`
	APSSID string `yaml:"ap_ssid"`
	APIP   string `yaml:"ap_ip"`
	// Captive redirects foreign hosts to the portal.
	Captive bool `yaml:"captive"`
}

// MQTT is the optional status mirror. An empty Broker disables it.
type MQTT struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

type Heartbeat struct {
	PeriodMs int `yaml:"period_ms"` // scheduler tick
	StatusMs int `yaml:"status_ms"` // status heartbeat
}

type SimNetwork struct {
	SSID string `yaml:"ssid"`
	RSSI int32  `yaml:"rssi"`
	Open bool   `yaml:"open"`
}

// Sim configures the simulated radio used when no real one is attached.
type Sim struct {
	Enabled     bool         `yaml:"enabled"`
	Networks    []SimNetwork `yaml:"networks"`
	LinkDelayMs int          `yaml:"link_delay_ms"`
	FailReason  int32        `yaml:"fail_reason"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.FileMaxBytes <= 0 {
		c.Log.FileMaxBytes = logx.DefaultCapBytes
	}
	if c.Serial.Baud <= 0 {
		c.Serial.Baud = 9600
	}
	if c.Upload.TimeoutMs <= 0 {
		c.Upload.TimeoutMs = 8000
	}
	if c.API.Listen == "" {
		c.API.Listen = ":8080"
	}
	if c.API.APIP == "" {
		c.API.APIP = "192.168.4.1"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "sensorbridge/" + c.Device
	}
	if c.Heartbeat.PeriodMs <= 0 || c.Heartbeat.PeriodMs >= 10 {
		c.Heartbeat.PeriodMs = 5
	}
	if c.Heartbeat.StatusMs <= 0 {
		c.Heartbeat.StatusMs = 1000
	}
	if c.Sim.LinkDelayMs <= 0 {
		c.Sim.LinkDelayMs = 2000
	}
}

// sections lists what is published, in a stable order.
func (c *Config) sections() []struct {
	name string
	val  any
} {
	return []struct {
		name string
		val  any
	}{
		{SectionLog, c.Log},
		{SectionSerial, c.Serial},
		{SectionUpload, c.Upload},
		{SectionAPI, c.API},
		{SectionMQTT, c.MQTT},
		{SectionHeartbeat, c.Heartbeat},
		{SectionSim, c.Sim},
	}
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
	cfg  *Config
	log  *slog.Logger
}

func NewConfigService(cfg *Config, l *slog.Logger) *ConfigService {
	return &ConfigService{Name: serviceName, cfg: cfg, log: logx.Component(l, serviceName)}
}

// Publish sends every section as a retained message.
func (s *ConfigService) Publish(conn *bus.Connection) {
	for _, sec := range s.cfg.sections() {
		conn.Publish(conn.NewMessage(Topic(sec.name), sec.val, true))
	}
	s.log.Debug("config:published", slog.String("device", s.cfg.Device))
}

// SetHeartbeat replaces the heartbeat section and republishes it.
func (s *ConfigService) SetHeartbeat(conn *bus.Connection, hb Heartbeat) {
	s.cfg.Heartbeat = hb
	conn.Publish(conn.NewMessage(Topic(SectionHeartbeat), hb, true))
}

// Start launches the publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if ctx.Err() != nil {
			return
		}
		s.Publish(conn)
	}()
}
