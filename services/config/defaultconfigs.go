//go:build !(rp2040 || rp2350)

package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (the --device flag)
// Val: YAML defaults for that device; a config file overrides them.
// -----------------------------------------------------------------------------

const cfgHost = `
data_dir: data
log:
  level: info
  format: text
  file: data/serial.log
  file_max_bytes: 32768
serial:
  port: /dev/ttyUSB0
  baud: 9600
upload:
  url: https://collector.invalid/api/v1/scales/weight
  default_token: ""
  insecure_tls: true
  timeout_ms: 8000
api:
  listen: ":8080"
  ap_ssid: Scale-Setup
  ap_ip: 192.168.4.1
heartbeat:
  period_ms: 5
  status_ms: 1000
`

const cfgSim = `
data_dir: data-sim
log:
  level: debug
  format: text
serial:
  port: ""
upload:
  url: https://localhost:8443/weight
  insecure_tls: true
api:
  listen: "127.0.0.1:8080"
  ap_ssid: Scale-Setup
heartbeat:
  period_ms: 5
sim:
  enabled: true
  link_delay_ms: 2000
  networks:
    - {ssid: Home, rssi: -48, open: false}
    - {ssid: Cafe, rssi: -71, open: true}
    - {ssid: Home, rssi: -80, open: false}
`

var embeddedConfigs = map[string][]byte{
	"host": []byte(cfgHost),
	"sim":  []byte(cfgSim),
}
