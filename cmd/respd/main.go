// Command respd runs an echo Server alongside a Prometheus metrics HTTP
// endpoint, stopping both cleanly on SIGINT/SIGTERM. It is the daemon
// counterpart to netctl serve: a long-running process instead of a
// one-shot CLI invocation.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	netpkg "github.com/marmos91/asyncnet/net"
	"github.com/marmos91/asyncnet/net/server/metrics"
	"github.com/marmos91/asyncnet/pkg/config"
)

const handlerIdleTimeout = 30 * time.Second

type echoHandler struct {
	pending []byte
	closed  bool
}

func (h *echoHandler) GetOperation() netpkg.HandlerOperation {
	if h.closed {
		return netpkg.HandlerOperation{Close: true}
	}
	if len(h.pending) > 0 {
		data := h.pending
		h.pending = nil
		return netpkg.HandlerOperation{DataToSend: data, TimeToWait: handlerIdleTimeout}
	}
	return netpkg.HandlerOperation{TimeToWait: handlerIdleTimeout}
}

func (h *echoHandler) AdvanceTime(time.Duration)  {}
func (h *echoHandler) HandleData(data []byte)     { h.pending = append(h.pending, data...) }
func (h *echoHandler) HandleSendTimeout([]byte)   { h.closed = true }
func (h *echoHandler) HandleConnectionClose()     { h.closed = true }

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("ASYNCNET_CONFIG"), nil)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	reg := prometheus.NewRegistry()
	collector := metrics.New(reg, "asyncnet")

	stack := netpkg.NewTCPNetworkStack()
	name := netpkg.ParseName(cfg.ListenName, "0")
	listener, err := stack.Listen(name, 64)
	if err != nil {
		return err
	}

	factory := netpkg.ProtocolHandlerFactoryFunc(func() netpkg.ProtocolHandler {
		return &echoHandler{}
	})
	server := netpkg.NewServer(listener, factory, logger, collector)
	server.SetLogName(name.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		server.Run()
		return nil
	})

	var httpServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		httpServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		g.Go(func() error {
			logger.Info("metrics listening", slog.String("addr", cfg.MetricsAddr))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		server.Stop()
		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpServer.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}
