package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/pusherctl/internal/app"
	"github.com/danmuck/pusherctl/internal/bus"
	"github.com/danmuck/pusherctl/internal/logging"
	"github.com/danmuck/pusherctl/internal/observability"
	"github.com/danmuck/pusherctl/internal/router"
	"github.com/danmuck/pusherctl/internal/session"
	"github.com/danmuck/pusherctl/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg := defaultDaemonConfig()
	if *configPath != "" {
		loaded, err := loadDaemonConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pusherctl: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "pusherctl: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg daemonConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	observability.RegisterMetrics()

	machine := app.NewMachine()
	b := bus.New(cfg.QueueCapacity, cfg.QueuePolicy)
	handlers := app.NewHandlers(machine, b)

	rt := router.New()
	if err := handlers.Register(rt); err != nil {
		return err
	}
	rt.Freeze()
	log.Info().Int("routes", rt.Routes()).Msg("route table frozen")

	sessCfg := session.Config{
		ReadTimeout: cfg.ReadTimeout,
		Mode:        cfg.DispatchMode,
	}

	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				log.Error().Str("task", name).Err(err).Msg("task failed")
				stop()
			}
		}()
	}

	start("dispatcher", bus.NewDispatcher(b, rt, handlers.Notify).Run)
	start("tcp", transport.NewTCPServer(cfg.ListenAddr, rt, b, sessCfg).ListenAndServe)
	start("heartbeat", app.NewHeartbeat(cfg.HeartbeatInterval, b).Run)

	if cfg.ButtonInterval > 0 {
		start("button", app.NewButtonSource(cfg.ButtonInterval, 4, b).Run)
	}
	if cfg.WSAddr != "" {
		ws := transport.NewWSServer(rt, b, sessCfg)
		start("ws", func(ctx context.Context) error {
			return ws.ListenAndServe(ctx, cfg.WSAddr)
		})
	}
	if cfg.MetricsAddr != "" {
		start("metrics", func(ctx context.Context) error {
			return serveMetrics(ctx, cfg.MetricsAddr)
		})
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")
	wg.Wait()
	return nil
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	log.Info().Str("addr", addr).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
