//go:build !rp2040

package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"irlearn-go/services/hal"
	"irlearn-go/x/logx"
)

type stdio struct {
	io.Reader
	io.Writer
}

func main() {
	device := flag.String("device", "host", "embedded config to publish")
	level := flag.String("log", "info", "log level: none, error, warn, info, debug")
	replay := flag.String("replay", "", "comma-separated microsecond samples to play on the receiver pin")
	rxPin := flag.Int("rx", 2, "receiver pin used by -replay")
	every := flag.Duration("every", 5*time.Second, "replay period")
	flag.Parse()

	logx.SetLevel(logx.ParseLevel(*level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, play := hal.HostResources()
	start(ctx, *device, stdio{os.Stdin, os.Stdout}, res)

	if *replay != "" {
		samples, err := parseSamples(*replay)
		if err != nil {
			log.Error("bad -replay", "err", err)
			os.Exit(2)
		}
		go func() {
			t := time.NewTicker(*every)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					<-play(*rxPin, samples)
				}
			}
		}()
	}

	<-ctx.Done()
	// Give services a moment to publish their stopped state.
	time.Sleep(100 * time.Millisecond)
}

func parseSamples(s string) ([]uint16, error) {
	var out []uint16
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 16)
		if err != nil {
			return nil, err
		}
		out = append(out, uint16(v))
	}
	return out, nil
}
