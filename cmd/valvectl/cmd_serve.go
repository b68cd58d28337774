package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/valvectl/internal/api"
	"github.com/nerrad567/valvectl/internal/operation"
)

// shutdownTimeout bounds teardown of the active operation on exit.
const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serve runs the HTTP API: operators start and stop valve operations,
viewers read the operation history and follow live logs over WebSocket.
At most one operation runs at a time. On SIGINT or SIGTERM the active
operation is stopped and its channels reset before the process exits.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	log.Info("starting valvectl", "version", version, "commit", commit, "build_date", date)

	st, err := openStack(ctx, cfg, log, stackOptions{requireHistory: true})
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.healthCheck(ctx); err != nil {
		log.Warn("health check reported problems", "error", err)
	}

	hub := api.NewHub(cfg.WebSocket, log)
	manager := operation.NewManager(ctx, operation.Options{
		Driver:    st.driver,
		Repo:      st.repo,
		Observer:  st.observer(hub),
		Summaries: st.summaries(),
		Logger:    log,

		CleanupTimeout: cfg.GetCleanupTimeout(),
	})
	st.listenForStop(manager)

	srv, err := api.New(api.Deps{
		Config:                 cfg.API,
		WS:                     cfg.WebSocket,
		Security:               cfg.Security,
		Logger:                 log,
		Manager:                manager,
		Repo:                   st.repo,
		DB:                     st.db,
		MQTT:                   st.mqtt,
		Hub:                    hub,
		DefaultDurationMinutes: cfg.Run.DefaultDurationMinutes,
		Version:                version,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// The signal already cancelled the active run; wait for its teardown.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Error("operation teardown did not finish", "error", err)
	}

	if err := srv.Close(); err != nil {
		log.Error("error closing API server", "error", err)
	}

	log.Info("valvectl stopped")
	return nil
}
