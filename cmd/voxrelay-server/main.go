// Command voxrelay-server runs the voice-conferencing relay: it accepts
// TCP connections streaming PCM audio frames, mixes concurrently
// speaking clients, and fans the mix back out in real time.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowpbx/voxrelay/internal/adminhttp"
	"github.com/flowpbx/voxrelay/internal/config"
	"github.com/flowpbx/voxrelay/internal/relay"
)

const banner = `voxrelay-server: low-latency voice conferencing relay`

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	fmt.Println(banner)
	logger.Info("starting voxrelay-server",
		"listen_addr", cfg.ListenAddr,
		"admin_addr", cfg.AdminAddr,
		"frame_size", cfg.FrameSize,
		"queue_cap", cfg.QueueCap,
		"mix_period", cfg.MixPeriod,
	)

	registry := relay.NewRegistry(logger)
	collector := adminhttp.NewCollector(registry)

	metrics := relay.MixerMetrics{
		FramesMixed:   collector.FramesMixed(),
		FramesDropped: collector.FramesDropped(),
		CycleObserved: collector.CycleObserved(),
	}

	server := relay.NewServer(relay.Config{
		ListenAddr: cfg.ListenAddr,
		FrameSize:  cfg.FrameSize,
		QueueCap:   cfg.QueueCap,
		MixPeriod:  cfg.MixPeriod,
		SocketBuf:  cfg.SocketBuf,
	}, logger, registry, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Error("failed to start relay server", "error", err)
		return 1
	}
	logger.Info("listening", "addr", cfg.ListenAddr)

	adminSrv := &http.Server{
		Addr:         cfg.AdminAddr,
		Handler:      adminhttp.NewServer(server, collector),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	go func() {
		logger.Info("admin http server listening", "addr", cfg.AdminAddr)
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("received shutdown signal")

	server.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin http server shutdown error", "error", err)
	}

	logger.Info("voxrelay-server stopped")
	return 0
}
