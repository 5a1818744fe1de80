//go:build !(rp2040 || rp2350)

package main

import (
	"github.com/spf13/cobra"

	"sensorbridge-go/services/config"
)

type flags struct {
	cfgFile  string
	device   string
	dataDir  string
	serial   string
	listen   string
	logLevel string
	mqtt     string
	sim      bool
}

var opts flags

var rootCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Wireless scale bridge",
	Long: `bridge reads weights from a serial scale, keeps the station link up,
serves the setup API and posts each weight to the collector.

Configuration comes from the embedded defaults for --device, then the
--config file, then any flags given on the command line.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, opts)
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&opts.cfgFile, "config", "", "YAML config file applied over the embedded defaults")
	f.StringVar(&opts.device, "device", "host", "embedded config to start from (host, sim)")
	f.StringVar(&opts.dataDir, "data-dir", "", "directory for the settings store, scan cache and log")
	f.StringVar(&opts.serial, "serial", "", "scale serial port")
	f.StringVar(&opts.listen, "listen", "", "API listen address")
	f.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&opts.mqtt, "mqtt", "", "MQTT broker URL for the status mirror")
	f.BoolVar(&opts.sim, "sim", false, "use the simulated radio")

	rootCmd.AddCommand(configCmd)
}

// loadConfig layers flags that were set explicitly over the loaded file.
func loadConfig(cmd *cobra.Command, o flags) (*config.Config, error) {
	cfg, err := config.Load(o.device, o.cfgFile)
	if err != nil {
		return nil, err
	}
	changed := cmd.PersistentFlags().Changed
	if changed("data-dir") {
		cfg.DataDir = o.dataDir
	}
	if changed("serial") {
		cfg.Serial.Port = o.serial
	}
	if changed("listen") {
		cfg.API.Listen = o.listen
	}
	if changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if changed("mqtt") {
		cfg.MQTT.Broker = o.mqtt
	}
	if changed("sim") {
		cfg.Sim.Enabled = o.sim
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Root(), opts)
		if err != nil {
			return err
		}
		b, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	},
}
