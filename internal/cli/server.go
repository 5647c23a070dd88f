package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"quiz-runner/internal/config"
	"quiz-runner/internal/infra/memory"
	transport "quiz-runner/internal/transport/http"
)

// NewServeCmd builds the subcommand that runs the local quiz front end.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Serve the quiz-taking API and WebSocket feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port, cmd.Flags().Changed("port"))
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string, portSet bool) error {
	rt, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer rt.Close()
	log := rt.log

	finalPort := portFlag
	if !portSet && os.Getenv("PORT") == "" && rt.cfg.Server.Port != "" {
		finalPort = rt.cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	api := transport.NewServer(transport.Config{
		Flow:         rt.flow(),
		Results:      rt.results(),
		Runs:         memory.NewRunRegistry(),
		TickInterval: config.TTLDuration(rt.cfg.Quiz.TickInterval, time.Second),
		Log:          log,
		Metrics:      rt.metrics,
	})
	defer api.Close()

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     api.Routes(),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Str("backend", rt.cfg.Backend.BaseURL).Msg("starting quiz runner")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
