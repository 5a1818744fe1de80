//go:build !(rp2040 || rp2350)

// scaletap prints what the bridge would decode from a scale's serial port,
// with periodic line and drop counters.
//
//	scaletap /dev/ttyUSB0
//	scaletap --baud 4800 --stats 10s /dev/ttyS1
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"sensorbridge-go/platform"
	"sensorbridge-go/services/decoder"
	"sensorbridge-go/types"
	"sensorbridge-go/x/logx"
)

var (
	baud      int
	statEvery time.Duration
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:          "scaletap <port>",
	Short:        "Decode a scale's serial output",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		l := logx.New(cmd.ErrOrStderr(), level, "text")
		pump := platform.NewSerialPump(args[0], baud, l)
		done := pump.Start(ctx)
		tap(ctx, pump, cmd.OutOrStdout(), statEvery)
		<-done
		return nil
	},
}

func init() {
	rootCmd.Flags().IntVar(&baud, "baud", 9600, "line rate")
	rootCmd.Flags().DurationVar(&statEvery, "stats", 5*time.Second, "counter interval, 0 disables")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log port open/close events")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type source interface {
	decoder.Source
	Readable() <-chan struct{}
	Dropped() uint64
}

// tap decodes src until ctx ends, printing each reading and, every
// statEvery, the running counters.
func tap(ctx context.Context, src source, w io.Writer, statEvery time.Duration) {
	dec := decoder.New()
	var stats <-chan time.Time
	if statEvery > 0 {
		t := time.NewTicker(statEvery)
		defer t.Stop()
		stats = t.C
	}
	start := time.Now()
	var valued uint32
	for {
		for _, r := range dec.Drain(src, time.Now()) {
			if r.HasValue {
				valued++
			}
			printReading(w, r)
		}
		select {
		case <-ctx.Done():
			return
		case <-src.Readable():
		case <-stats:
			el := time.Since(start).Seconds()
			fmt.Fprintf(w, "# lines=%d valued=%d overflows=%d dropped=%d rate=%.1f/s\n",
				dec.Lines, valued, dec.Overflows, src.Dropped(), float64(dec.Lines)/el)
		}
	}
}

func printReading(w io.Writer, r types.Reading) {
	ts := r.CapturedAt.Format("15:04:05.000")
	if !r.HasValue {
		fmt.Fprintf(w, "%s %-16q (no value)\n", ts, r.Raw)
		return
	}
	fmt.Fprintf(w, "%s %-16q %.3f\n", ts, r.Raw, r.Value)
}
