package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agent-forge/agent-forge/internal/agents"
	httpapi "github.com/agent-forge/agent-forge/internal/api/http"
	"github.com/agent-forge/agent-forge/internal/application/archive"
	"github.com/agent-forge/agent-forge/internal/application/engine"
	"github.com/agent-forge/agent-forge/internal/config"
	"github.com/agent-forge/agent-forge/internal/domain/agent"
	"github.com/agent-forge/agent-forge/internal/domain/pipeline"
	"github.com/agent-forge/agent-forge/internal/infrastructure/eventbus"
	"github.com/agent-forge/agent-forge/internal/infrastructure/memstore"
	"github.com/agent-forge/agent-forge/internal/metrics"
)

func main() {
	root := &cobra.Command{
		Use:   "agent-forge",
		Short: "Agent pipeline orchestration service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	registry := agent.NewRegistry()
	completer := agents.NewOpenAICompleter(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	if err := agents.RegisterAll(registry, completer, logger); err != nil {
		return err
	}
	if missing := registry.ValidateDependencies(); len(missing) > 0 {
		logger.Warn().Strs("missing", missing).Msg("unresolved agent dependencies")
	}

	bus := eventbus.NewBus(cfg.EventHistoryCap, logger)
	defer bus.Close()
	store := memstore.NewStore()
	m := metrics.New()

	// Every published event counts, regardless of type.
	bus.SubscribeFiltered(func(eventbus.Event) bool { return true }, func(e eventbus.Event) {
		m.EventsPublished.WithLabelValues(string(e.Type)).Inc()
	})

	archiver := archive.NewArchiver(cfg.BackendURL, bus, logger)
	if !archiver.Enabled() {
		logger.Info().Msg("no backend configured; archiving disabled")
	}

	eng := engine.NewEngine(registry, store, bus, m, archiver, cfg.DefaultStepTimeout, logger)
	loader := pipeline.NewLoader(cfg.PipelineDir)

	apiServer := httpapi.NewServer(eng, store, bus, loader, registry, m, logger)
	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctxShutdown)
}
