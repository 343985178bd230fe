// Command ir-collector reads IR event frames from the device's bridge UART
// and serves the captures over HTTP and a websocket stream.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/tarm/serial"

	"irlearn-go/services/collector"
	"irlearn-go/x/logx"
)

var log = logx.New("ir-collector")

func main() {
	port := flag.String("serial", "", "serial port of the device bridge, e.g. /dev/ttyUSB0")
	baud := flag.Int("baud", 115200, "baud rate of the serial port")
	listen := flag.String("listen", "localhost:8080", "HTTP listen address")
	keep := flag.Int("keep", collector.DefaultKeep, "captures kept per source")
	origins := flag.String("origins", "", "comma-separated websocket origin patterns")
	flag.Parse()

	if *port == "" {
		flag.Usage()
		os.Exit(2)
	}
	if _, err := os.Stat(*port); err != nil {
		log.Error("serial port", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	st := collector.NewStore(*keep)
	var allow []string
	if *origins != "" {
		allow = strings.Split(*origins, ",")
	}
	srv := &http.Server{Addr: *listen, Handler: collector.Handler(st, allow)}
	go func() {
		log.Info("serving", "addr", *listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http", "err", err)
			stop()
		}
	}()

	go readLoop(ctx, *port, *baud, st)

	<-ctx.Done()
	shut, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(shut)
}

// readLoop reopens the port after errors until ctx ends.
func readLoop(ctx context.Context, name string, baud int, st *collector.Store) {
	for ctx.Err() == nil {
		p, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud})
		if err != nil {
			log.Warn("open serial", "port", name, "err", err)
			sleep(ctx, time.Second)
			continue
		}
		log.Info("opened serial", "port", name, "baud", baud)
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				_ = p.Close()
			case <-done:
			}
		}()
		if err := collector.Ingest(ctx, p, st); err != nil && ctx.Err() == nil {
			log.Warn("link lost", "err", err)
		}
		close(done)
		_ = p.Close()
		sleep(ctx, time.Second)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
