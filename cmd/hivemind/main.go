package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/hivemind/internal/api"
	"github.com/nidhogg/hivemind/internal/cache"
	"github.com/nidhogg/hivemind/internal/config"
	"github.com/nidhogg/hivemind/internal/dialogue"
	"github.com/nidhogg/hivemind/internal/embedding"
	"github.com/nidhogg/hivemind/internal/engine"
	"github.com/nidhogg/hivemind/internal/gateway"
	"github.com/nidhogg/hivemind/internal/orchestrator"
	"github.com/nidhogg/hivemind/internal/pool"
	"github.com/nidhogg/hivemind/internal/router"
	pgstore "github.com/nidhogg/hivemind/internal/store"
	"github.com/nidhogg/hivemind/internal/vectorstore"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Hivemind...")

	cfg := config.Load()

	// PostgreSQL persistence (optional)
	var store *pgstore.Store
	if cfg.PostgresDSN != "" {
		ps, err := pgstore.New(cfg.PostgresDSN, logger)
		if err != nil {
			logger.Warn("PostgreSQL unavailable, running without persistence", zap.Error(err))
		} else {
			if mErr := ps.Migrate(context.Background(), cfg.MigrationsDir); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			store = ps
		}
	}

	// Redis session cache + event bus (optional)
	var sessionCache *cache.Cache
	var bus *cache.Bus
	if cfg.RedisURL != "" {
		c, err := cache.New(cfg.RedisURL, cfg.SessionTTL, logger)
		if err != nil {
			logger.Warn("Redis unavailable, running without session cache", zap.Error(err))
		} else {
			sessionCache = c
			bus = cache.NewBus(c, logger)
		}
	}

	// Qdrant conversation memory (optional)
	var memory *vectorstore.SessionMemory
	if cfg.QdrantHost != "" {
		client, err := vectorstore.NewClient(vectorstore.Config{Host: cfg.QdrantHost, Port: cfg.QdrantPort})
		if err != nil {
			logger.Warn("Qdrant unavailable, running without memory", zap.Error(err))
		} else {
			embedder := embedding.NewProvider(embedding.Config{
				Provider:  cfg.Embedding.Provider,
				Endpoint:  cfg.Embedding.Endpoint,
				Model:     cfg.Embedding.Model,
				APIKey:    cfg.Embedding.APIKey,
				Dimension: cfg.Embedding.Dimension,
			})
			mem, memErr := vectorstore.NewSessionMemory(context.Background(), client, embedder, logger)
			if memErr != nil {
				logger.Warn("memory init failed", zap.Error(memErr))
			} else {
				memory = mem
			}
		}
	}

	// Agent pool with the default catalog
	agentPool := pool.New(logger)
	if err := agentPool.Initialize(pool.DefaultAgents()); err != nil {
		logger.Fatal("agent pool init failed", zap.Error(err))
	}

	// Engine adapters: one CLI, two roles
	primaryProfile := engine.Profile{
		CLIPath:        cfg.Engine.CLIPath,
		Model:          cfg.Engine.Model,
		MaxTokens:      cfg.Engine.MaxTokens,
		TimeoutSeconds: cfg.Engine.TimeoutSeconds,
	}
	primary := engine.New(primaryProfile, logger)

	consultantProfile := primaryProfile
	if cfg.Engine.ConsultantModel != "" {
		consultantProfile.Model = cfg.Engine.ConsultantModel
	}
	consultantProfile.ReasoningEffort = "high"
	consultant := engine.New(consultantProfile, logger)

	// Dispatcher around the engine executor
	executor := orchestrator.NewEngineExecutor(primary, logger)
	dispatcher := orchestrator.NewDispatcher(orchestrator.DispatcherConfig{
		MaxGlobalConcurrent: cfg.Dispatch.MaxGlobalConcurrent,
		MaxPerTeam:          cfg.Dispatch.MaxPerTeam,
		MaxPerAgent:         cfg.Dispatch.MaxPerAgent,
		Workers:             cfg.Dispatch.Workers,
		DefaultTimeout:      time.Duration(cfg.Engine.TimeoutSeconds) * time.Second,
	}, agentPool, executor, logger)
	if store != nil {
		dispatcher.SetRepository(store)
	}

	runCtx, stopWorkers := context.WithCancel(context.Background())
	dispatcher.Start(runCtx)

	// Coordinator
	rt := router.New(agentPool, router.DefaultOptions(), logger)
	coordinator := orchestrator.NewCoordinator(agentPool, rt, dispatcher, logger)
	if store != nil {
		coordinator.SetRepository(store)
	}
	if sessionCache != nil {
		coordinator.SetCache(sessionCache)
	}
	if memory != nil {
		coordinator.SetMemory(memory)
	}

	// Planning dialogue
	coordinator.SetPlanner(dialogue.New(primary, consultant, agentPool.AgentIDs, dialogue.Config{
		MaxTurns:          cfg.Dialogue.MaxTurns,
		ProposalTimeout:   cfg.Dialogue.PrimaryTimeout,
		EvaluationTimeout: cfg.Dialogue.ConsultantTimeout,
	}, logger))

	// Outbound notifications
	broadcaster := gateway.NewBroadcaster(logger)
	if cfg.Gateway.SlackToken != "" {
		broadcaster.Register(gateway.NewSlackAdapter(cfg.Gateway.SlackToken, cfg.Gateway.SlackChannel, logger))
	}
	if cfg.Gateway.DiscordToken != "" {
		broadcaster.Register(gateway.NewDiscordAdapter(cfg.Gateway.DiscordToken, cfg.Gateway.DiscordChannel, logger))
	}
	broadcaster.Connect(context.Background())

	// Event fan-out: websocket hub, Redis stream, gateways
	hub := api.NewHub(logger)
	publishers := orchestrator.MultiPublisher{hub, broadcaster}
	if bus != nil {
		publishers = append(publishers, bus)
	}
	coordinator.SetPublisher(publishers)

	// HTTP server
	handler := api.NewHandler(coordinator, dispatcher, agentPool, store, broadcaster, hub, logger)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Hivemind listening", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Hivemind...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	stopWorkers()
	dispatcher.Wait()
	hub.Close()
	broadcaster.Close()
	if sessionCache != nil {
		sessionCache.Close()
	}
	if store != nil {
		store.Close()
	}
}
