package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arenaview.ai/internal/fallback"
	"arenaview.ai/internal/transport/ws"
)

func main() {
	var (
		addr     = flag.String("addr", ":8080", "http listen address")
		path     = flag.String("path", "/ws", "websocket path")
		interval = flag.Duration("interval", 100*time.Millisecond, "broadcast interval")
		seed     = flag.Int64("seed", 0, "rng seed (0 = time based)")
		matchID  = flag.String("match", "", "match id (default: random)")
		queue    = flag.Int("client_queue", 16, "frames buffered per viewer")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[arenad] ", log.LstdFlags|log.Lmicroseconds)
	if *interval <= 0 {
		logger.Fatalf("interval must be > 0")
	}

	d := newDemo(fallback.Config{Seed: *seed, MatchID: *matchID}, logger)
	b := ws.NewBroadcaster(logger, ws.BroadcasterOptions{ClientQueue: *queue})

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		t := time.NewTicker(*interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case rc := <-b.Commands():
				d.apply(rc.Command, time.Now())
			case now := <-t.C:
				s, ok := d.step(now)
				if !ok {
					continue
				}
				if _, err := b.BroadcastSnapshot(s); err != nil {
					logger.Printf("broadcast: %v", err)
				}
			}
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc(*path, b.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		b.Close()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s%s interval=%s", *addr, *path, *interval)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	logger.Printf("dropped frames=%d", b.Dropped())
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
