package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"storefront/internal/catalog"
	"storefront/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the catalog HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	shutdownTracing, err := telemetry.Setup(ctx, a.cfg.OTLPEndpoint, a.cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			a.log.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	svc := catalog.NewService(a.records, a.assets, catalog.WithLogger(a.log))

	var limiter *rate.Limiter
	if a.cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(a.cfg.RateLimit), max(a.cfg.RateBurst, 1))
	}
	handler := catalog.NewHandler(svc, catalog.HandlerConfig{Logger: a.log, WriteLimiter: limiter})

	if a.cfg.SweepInterval > 0 {
		sweeper := catalog.NewSweeper(a.records, a.assets, a.cfg.SweepGrace, a.log)
		go sweeper.Run(ctx, a.cfg.SweepInterval)
	}

	srv := &http.Server{
		Addr:              a.cfg.AppPort,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", srv.Addr).Msg("starting catalog service")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
