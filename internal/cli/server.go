package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"competition-service/internal/config"
	transport "competition-service/internal/transport/http"
	"github.com/gorilla/handlers"
	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the competition server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setLogLevel(cfg.Log.Level)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}
	if cfg.Admin.APIKey == "" {
		log.Warnf("no admin API key configured; admin and timing endpoints are disabled")
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	router := transport.NewRouter(rt.service, cfg.Admin.APIKey)
	handler := handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(
		handlers.LoggingHandler(os.Stdout, router),
	)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: the leaderboard websocket stays open
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Infof("starting competition service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
