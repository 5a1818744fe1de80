//go:build !(rp2040 || rp2350)

// bridge runs the scale bridge on a host: the scale on a serial port, the
// setup API on HTTP, status mirrored to MQTT and weights posted upstream.
//
// Usage:
//
//	bridge                          # embedded "host" config
//	bridge --device sim             # simulated radio and networks
//	bridge --config bridge.yaml     # file overrides the embedded defaults
//	bridge --serial /dev/ttyUSB1 --listen :9090
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
