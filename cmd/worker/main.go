package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/fairaudit/internal/config"
	"github.com/danielpatrickdp/fairaudit/internal/logging"
	"github.com/danielpatrickdp/fairaudit/internal/worker"
)

const shutdownGrace = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, listen, metricsListen string
	cmd := &cobra.Command{
		Use:          "worker",
		Short:        "Serve metric evaluations over gRPC for distributed audits",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Serve.Listen = listen
			}
			if cmd.Flags().Changed("metrics-listen") {
				cfg.Serve.MetricsListen = metricsListen
			}
			log, err := logging.New(cfg.Logging())
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			lis, err := net.Listen("tcp", cfg.Serve.Listen)
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.Serve.Listen, err)
			}
			var metricsLis net.Listener
			if cfg.Serve.MetricsListen != "" {
				metricsLis, err = net.Listen("tcp", cfg.Serve.MetricsListen)
				if err != nil {
					lis.Close()
					return fmt.Errorf("listen %s: %w", cfg.Serve.MetricsListen, err)
				}
			}
			return serve(ctx, lis, metricsLis, logging.Component(log, "worker"))
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to fairaudit.yaml")
	cmd.Flags().StringVar(&listen, "listen", "", "gRPC listen address (overrides serve.listen)")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "Prometheus listen address, empty to disable")
	return cmd
}

// #region serve
// serve runs the gRPC worker on lis and, when metricsLis is non-nil, a
// /metrics endpoint. It returns once ctx is cancelled and both servers have
// stopped.
func serve(ctx context.Context, lis, metricsLis net.Listener, log *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv, err := worker.NewServer(log, reg)
	if err != nil {
		return err
	}
	gs := grpc.NewServer()
	worker.RegisterWorkerServer(gs, srv)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("worker listening", zap.String("addr", lis.Addr().String()))
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})

	var hs *http.Server
	if metricsLis != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		hs = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.Info("metrics listening", zap.String("addr", metricsLis.Addr().String()))
			if err := hs.Serve(metricsLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics serve: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		done := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(done)
		}()
		timer := time.NewTimer(shutdownGrace)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			gs.Stop()
			<-done
		}
		if hs != nil {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return hs.Shutdown(sctx)
		}
		return nil
	})
	return g.Wait()
}
// #endregion serve
