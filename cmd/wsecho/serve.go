// File: cmd/wsecho/serve.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/momentics/wstransport/adapters"
	"github.com/momentics/wstransport/control"
	"github.com/momentics/wstransport/highlevel"
	"github.com/momentics/wstransport/internal/config"
	"github.com/momentics/wstransport/wsconn"
)

func newServeCmd(a *app) *cobra.Command {
	var addr, path string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept WebSocket connections and echo every message as text",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Listen = addr
			}
			if cmd.Flags().Changed("path") {
				a.cfg.Path = path
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.cfg, a.log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9001", "listen address")
	cmd.Flags().StringVar(&path, "path", "/ws", "WebSocket endpoint path")
	return cmd
}

// serve runs the echo server until ctx is done.
func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	metrics := control.NewMetricsRegistry()
	probes := control.NewDebugProbes()
	probes.RegisterProbe("active_connections", func() any {
		return metrics.Counter("active_connections")
	})

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, newEchoHandler(ctx, cfg.Channel, log, metrics))
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	log.Info("listening", zap.String("addr", ln.Addr().String()), zap.String("path", cfg.Path))

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err = <-errc:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = srv.Shutdown(shutdownCtx)
		cancel()
	}
	log.Info("metrics", metrics.Fields()...)
	probes.Log(log, "debug dump")
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// echoHandler upgrades each request and forwards every text item back to
// the same peer.
type echoHandler struct {
	ctx          context.Context
	opts         []wsconn.Option
	closeTimeout time.Duration
	log          *zap.Logger
	metrics      *control.MetricsRegistry
}

func newEchoHandler(ctx context.Context, cc config.ChannelConfig, log *zap.Logger, metrics *control.MetricsRegistry) *echoHandler {
	return &echoHandler{
		ctx: ctx,
		opts: []wsconn.Option{
			wsconn.WithInboundQueue(cc.InboundQueue),
			wsconn.WithWriteTimeout(cc.WriteTimeout),
			wsconn.WithReadLimit(cc.ReadLimit),
			wsconn.WithLogger(log),
		},
		// an in-flight write may hold Close for up to one write timeout
		closeTimeout: cc.WriteTimeout + time.Second,
		log:          log,
		metrics:      metrics,
	}
}

func (h *echoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ch, err := wsconn.Upgrade(w, r, h.opts...)
	if err != nil {
		h.log.Warn("upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	h.metrics.Add("active_connections", 1)
	defer h.metrics.Add("active_connections", -1)

	log := h.log.With(zap.String("remote", r.RemoteAddr))
	log.Debug("connection opened")

	conn := highlevel.NewConn(adapters.NewTextAdapter(ch))
	n, err := highlevel.Forward(h.ctx, conn, conn)
	if err != nil {
		log.Info("connection ended", zap.Error(err))
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), h.closeTimeout)
	if err := conn.Close(closeCtx); err != nil {
		log.Debug("close", zap.Error(err))
	}
	cancel()

	stats := ch.Stats()
	h.metrics.Add("frames_received", stats["frames_received"])
	h.metrics.Add("frames_sent", stats["frames_sent"])
	h.metrics.Add("messages_forwarded", int64(n))
	log.Debug("connection closed", zap.Int("messages", n))
}
