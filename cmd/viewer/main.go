package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"arenaview.ai/internal/config"
	"arenaview.ai/internal/connmgr"
	"arenaview.ai/internal/engine"
	"arenaview.ai/internal/fallback"
	"arenaview.ai/internal/persistence/indexdb"
	"arenaview.ai/internal/persistence/recorder"
	"arenaview.ai/internal/protocol"
	"arenaview.ai/internal/telemetry"
	"arenaview.ai/internal/transport/ws"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to viewer.yaml (optional)")
		mode        = flag.String("mode", "", "live|fallback (overrides config)")
		url         = flag.String("url", "", "arena websocket url (overrides config)")
		dataDir     = flag.String("data", "", "data directory for recordings (overrides config)")
		record      = flag.Bool("record", false, "record reconciled passes under <data>/recordings")
		disableDB   = flag.Bool("disable_db", false, "do not index recordings in sqlite")
		metricsAddr = flag.String("metrics_addr", "", "serve /healthz and /metrics on this address (empty to disable)")
		verbose     = flag.Bool("v", false, "print every instruction")
		stdinCmds   = flag.Bool("stdin", true, "read commands from stdin (pause|resume|reset|select <id>|{json})")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[viewer] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Connection.Mode = *mode
		case "url":
			cfg.Connection.URL = *url
		case "data":
			cfg.Recording.DataDir = *dataDir
		case "record":
			cfg.Recording.Enabled = *record
		case "disable_db":
			cfg.Recording.Index = !*disableDB
		}
	})
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	metrics, inmem, err := telemetry.NewInmem(10*time.Second, time.Minute)
	if err != nil {
		logger.Fatalf("metrics: %v", err)
	}

	sinks := []engine.Sink{&consoleSink{log: logger, verbose: *verbose}}

	session := uuid.NewString()
	if cfg.Recording.Enabled {
		rec := recorder.New(cfg.Recording.DataDir, recorder.Options{
			Session:     session,
			RotateEvery: cfg.Recording.RotateEvery,
			Log:         logger,
		})
		defer func() {
			if err := rec.Close(); err != nil {
				logger.Printf("recorder close: %v", err)
			}
		}()
		sinks = append(sinks, rec)
		logger.Printf("recording session=%s dir=%s", session, rec.Dir())

		if cfg.Recording.Index {
			idx, err := indexdb.OpenSQLite(filepath.Join(cfg.Recording.DataDir, "index.sqlite"))
			if err != nil {
				logger.Fatalf("open index: %v", err)
			}
			defer idx.Close()
			ss := idx.BeginSession(session, cfg.Mode().String(), cfg.Connection.URL, nil)
			defer ss.End()
			sinks = append(sinks, ss)
		}
	}

	deps := engine.Deps{Log: logger, Metrics: metrics}
	if cfg.Mode() == connmgr.ModeFallback {
		deps.Fallback = fallback.New(cfg.FallbackConfig())
	} else {
		deps.Dialer = ws.Dialer{
			HandshakeTimeout: cfg.Connection.DialTimeout,
			ReadTimeout:      cfg.Connection.ReadTimeout,
		}
	}
	eng, err := engine.New(cfg.EngineConfig(), deps, sinks...)
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if *metricsAddr != "" {
		srv := serveMetrics(*metricsAddr, inmem, logger)
		go func() {
			<-ctx.Done()
			ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel2()
			_ = srv.Shutdown(ctx2)
		}()
	}

	var cmds chan protocol.Command
	if *stdinCmds {
		cmds = make(chan protocol.Command, 16)
		go readCommands(ctx, os.Stdin, cmds, logger)
	}

	logger.Printf("starting mode=%s url=%s tick=%s", cfg.Mode(), cfg.Connection.URL, cfg.Engine.TickInterval)
	if err := eng.Run(ctx, cfg.Engine.TickInterval, cmds); err != nil && err != context.Canceled {
		logger.Printf("engine stopped: %v", err)
	}
	logger.Printf("bye")
}

func readCommands(ctx context.Context, f *os.File, out chan<- protocol.Command, logger *log.Logger) {
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		cmd, err := parseCommand(sc.Text())
		if err != nil {
			logger.Printf("command: %v", err)
			continue
		}
		select {
		case out <- cmd:
		case <-ctx.Done():
			return
		}
	}
}

func serveMetrics(addr string, inmem interface {
	DisplayMetrics(http.ResponseWriter, *http.Request) (interface{}, error)
}, logger *log.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		v, err := inmem.DisplayMetrics(rw, r)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(v)
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Printf("metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server: %v", err)
		}
	}()
	return srv
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
