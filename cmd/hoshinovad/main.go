// SPDX-License-Identifier: MIT

// Package main implements hoshinovad, the supervising daemon that watches
// configured YouTube channels and records their livestreams.
//
// hoshinovad is designed for 24/7 unattended operation: a crash in one
// recording task must not take down the feed poller, the notifier, or the
// HTTP API.
//
// Usage:
//
//	hoshinovad [options]
//
// Options:
//
//	--config=PATH       Path to the TOML configuration file (default: /etc/hoshinova/config.toml)
//	--pid-file=PATH     Path to the single-instance lock/pid file
//	--log-level=LEVEL   Log level: debug, info, warn, error (default: info)
//	--help              Show this help message
//
// The daemon automatically:
//   - Polls every configured channel's feed and enqueues matching videos
//   - Runs the configured recorder backend for each enqueued video
//   - Posts Discord webhook notifications on status transitions
//   - Serves the HTTP API, if a [webserver] table is configured
//   - Reloads its configuration on SIGHUP and shuts down on SIGINT/SIGTERM
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/thejerf/suture/v4"

	"github.com/HoloArchivists/hoshinova-go/internal/buildinfo"
	"github.com/HoloArchivists/hoshinova-go/internal/bus"
	"github.com/HoloArchivists/hoshinova-go/internal/config"
	"github.com/HoloArchivists/hoshinova-go/internal/health"
	"github.com/HoloArchivists/hoshinova-go/internal/lock"
	"github.com/HoloArchivists/hoshinova-go/internal/notifier"
	"github.com/HoloArchivists/hoshinova-go/internal/recorder"
	"github.com/HoloArchivists/hoshinova-go/internal/scraper"
	"github.com/HoloArchivists/hoshinova-go/internal/task"
	"github.com/HoloArchivists/hoshinova-go/internal/webapi"
)

var (
	configPath = flag.String("config", "/etc/hoshinova/config.toml", "Path to the TOML configuration file")
	pidFile    = flag.String("pid-file", "/var/run/hoshinova/hoshinovad.pid", "Path to the single-instance lock file")
	logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	showHelp   = flag.Bool("help", false, "Show help message")
)

func main() {
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)
	logger.Info("starting hoshinovad", "version", buildinfo.Version, "config", *configPath)

	fl, err := lock.NewFileLock(*pidFile)
	if err != nil {
		logger.Error("failed to prepare pid file", "err", err)
		os.Exit(1)
	}
	if err := fl.Acquire(lock.DefaultAcquireTimeout); err != nil {
		logger.Error("another hoshinovad instance appears to be running", "pid_file", *pidFile, "err", err)
		os.Exit(1)
	}
	defer func() { _ = fl.Release() }()

	store, err := config.NewStore(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	b := bus.New[task.BusMessage](bus.DefaultCapacity)

	registry := webapi.NewRegistry()
	recorderSup := recorder.New(store, b, recorder.WithLogger(logger))
	poller := scraper.New(store, b, scraper.WithLogger(logger))
	discord := notifier.New(store, b, notifier.WithLogger(logger))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup := suture.New("hoshinovad", suture.Spec{
		EventHook: func(ev suture.Event) { logger.Warn("supervisor event", "event", ev.String()) },
	})
	sup.Add(busService{b})
	sup.Add(registryService{registry, b})
	sup.Add(runnerService{poller})
	sup.Add(runnerService{recorderSup})
	sup.Add(runnerService{discord})

	statusProvider := &daemonStatus{registry: registry, recorder: recorderSup}

	if wc := store.Get().Webserver; wc != nil && wc.BindAddress != "" {
		webHandler := webapi.NewHandler(store, b, registry, webapi.WithLogger(logger))
		sup.Add(apiService{addr: wc.BindAddress, handler: webHandler, logger: logger})
		sup.Add(healthService{addr: healthAddr(wc.BindAddress), provider: statusProvider, logger: logger})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	errCh := make(chan error, 1)
	go func() { errCh <- sup.Serve(ctx) }()

	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				if err := store.Reload(); err != nil {
					logger.Error("config reload failed", "err", err)
				} else {
					logger.Info("configuration reloaded")
				}
			default:
				logger.Info("received signal, shutting down", "signal", sig.String())
				cancel()
			}
		case err := <-errCh:
			if err != nil && err != context.Canceled {
				logger.Error("supervisor exited with error", "err", err)
			}
			logger.Info("shutdown complete")
			return
		}
	}
}

// busService adapts *bus.Bus to the Name()/Run(ctx) shape every other
// service already satisfies, so its failure folds into the same tree rather
// than being started as a bare goroutine the supervisor can't see.
type busService struct{ b *bus.Bus[task.BusMessage] }

func (busService) String() string { return "bus" }

func (s busService) Serve(ctx context.Context) error { return s.b.Start(ctx) }

// runner is satisfied by every bus-driven service (scraper.Poller,
// recorder.Supervisor, notifier.Discord): a Name() plus a blocking
// Run(ctx) error. runnerService adapts that shape to suture.Service.
type runner interface {
	Name() string
	Run(ctx context.Context) error
}

type runnerService struct{ r runner }

func (s runnerService) String() string { return s.r.Name() }

func (s runnerService) Serve(ctx context.Context) error { return s.r.Run(ctx) }

// registryService adapts webapi.Registry's Run(ctx, bus) signature to
// suture.Service's Serve(ctx) shape.
type registryService struct {
	r *webapi.Registry
	b *bus.Bus[task.BusMessage]
}

func (s registryService) String() string { return s.r.Name() }

func (s registryService) Serve(ctx context.Context) error { return s.r.Run(ctx, s.b) }

// apiService wraps the HTTP API's listen/serve lifecycle as a suture.Service.
type apiService struct {
	addr    string
	handler *webapi.Handler
	logger  *slog.Logger
}

func (s apiService) String() string { return "webapi" }

func (s apiService) Serve(ctx context.Context) error {
	ready := make(chan struct{})
	go func() {
		<-ready
		s.logger.Info("webapi listening", "addr", s.addr)
	}()
	return webapi.ListenAndServeReady(ctx, s.addr, s.handler, ready)
}

// healthService mounts the /healthz and /metrics endpoints on a dedicated
// port one above the API's, the way the teacher daemon exposes them
// alongside its own stream manager.
type healthService struct {
	addr     string
	provider health.StatusProvider
	logger   *slog.Logger
}

func (s healthService) String() string { return "health" }

func (s healthService) Serve(ctx context.Context) error {
	h := health.NewHandler(s.provider)
	return health.ListenAndServe(ctx, s.addr, h)
}

// daemonStatus adapts the recorder supervisor and the task registry into
// health.StatusProvider, reporting one ServiceInfo per task currently known
// to the daemon instead of per audio stream.
type daemonStatus struct {
	registry *webapi.Registry
	recorder *recorder.Supervisor
}

func (d *daemonStatus) Services() []health.ServiceInfo {
	snaps := d.registry.Snapshot()
	infos := make([]health.ServiceInfo, 0, len(snaps))
	for _, snap := range snaps {
		infos = append(infos, health.ServiceInfo{
			Name:    snap.Task.VideoID,
			State:   snap.Status.State.String(),
			Healthy: snap.Status.State != task.StateErrored,
			Error:   snap.Status.LastOutput,
		})
	}
	return infos
}

func healthAddr(apiAddr string) string {
	host, port, err := net.SplitHostPort(apiAddr)
	if err != nil {
		return apiAddr
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return apiAddr
	}
	return net.JoinHostPort(host, strconv.Itoa(n+1))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printUsage() {
	fmt.Println("hoshinovad - YouTube livestream recording daemon")
	fmt.Printf("Version: %s\n\n", buildinfo.Version)
	fmt.Println("Usage: hoshinovad [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Signals:")
	fmt.Println("  SIGINT, SIGTERM  Graceful shutdown")
	fmt.Println("  SIGHUP           Reload configuration")
}
