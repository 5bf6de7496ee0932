package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Navneet-55/msmesolut/internal/server"
	"github.com/Navneet-55/msmesolut/internal/trigger"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Lumina API server and scheduled agent runs",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP server port (default: config port, 4000)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	a.cfg.WarnIfInsecure()

	if n, err := a.store.PruneSessions(ctx); err != nil {
		log.Warn().Err(err).Msg("session_prune_failed")
	} else if n > 0 {
		log.Info().Int64("sessions", n).Msg("expired_sessions_pruned")
	}

	scheduler := trigger.NewScheduler(a.dispatcher, trigger.WithAdmission(a.tenants))
	if err := scheduler.RegisterTenants(a.tenantList); err != nil {
		return fmt.Errorf("registering schedules: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := server.NewServer(a.dispatcher, a.store, a.cfg.APIKeys,
		server.WithTenantManager(a.tenants),
		server.WithSealer(a.sealer),
		server.WithCORSOrigins(a.cfg.CORSOrigins),
		server.WithSessionTTL(a.cfg.SessionTTL),
		server.WithBuildInfo(resolvedVersion(), a.cfg.Environment),
	)

	port := a.cfg.Port
	if servePort != 0 {
		port = servePort
	}
	addr := fmt.Sprintf(":%d", port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Str("environment", a.cfg.Environment).
		Str("llm_provider", a.cfg.LLMProvider).
		Int("cron_entries", scheduler.Entries()).
		Int("tenants", len(a.tenantList)).
		Msg("lumina_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
