package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/structa/switchboard/internal/capability"
	"github.com/structa/switchboard/internal/checkpoint"
	"github.com/structa/switchboard/internal/classify"
	"github.com/structa/switchboard/internal/config"
	"github.com/structa/switchboard/internal/crossref"
	"github.com/structa/switchboard/internal/engine"
	"github.com/structa/switchboard/internal/retrieval"
	"github.com/structa/switchboard/internal/specialist"
	"github.com/structa/switchboard/internal/synthesis"
	"github.com/structa/switchboard/pkg/lifecycle"
)

type Server struct {
	logger      *slog.Logger
	lifecycle   *lifecycle.Coordinator
	engine      *engine.Engine
	embedCache  *capability.CachedEmbedder
	checkpoints *checkpoint.Async
	http        *httpServer
}

func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	clients := capability.NewHTTPClients(cfg.Capabilities.HTTPSettings())
	clients.Generator = capability.NewAnthropicGenerator(
		anthropic.Model(cfg.Generation.Model),
		cfg.Generation.MaxTokens,
		logger,
	)

	embedCache := capability.NewCachedEmbedder(clients.Embedder, cfg.Capabilities.EmbedCacheTTLDuration())
	clients.Embedder = embedCache
	clients = capability.Limit(clients, cfg.Capabilities.LimitSettings())

	table, err := classify.LoadTable(cfg.Domains.Path)
	if err != nil {
		return nil, fmt.Errorf("load domain table: %w", err)
	}

	classifier := classify.New(table, clients.Generator, logger)

	hybrid := retrieval.NewHybrid(clients.Embedder, clients.Vector, clients.Lexical, cfg.Retrieval.HybridSettings(), logger)
	reranker := retrieval.NewReranker(clients.Reranker, cfg.Retrieval.RerankSettings(), logger)

	registry := specialist.NewRegistry(table.DefaultKey())
	for _, domain := range table.Domains {
		agent := specialist.NewAgent(domain, hybrid, reranker, cfg.Retrieval.Limit, logger)
		registry.Register(domain.Key, domain.Product, agent)
	}

	resolver := crossref.New(cfg.CrossRef.ResolverSettings(), logger)
	synthesizer := synthesis.NewSynthesizer(clients.Generator, logger)

	validator, err := synthesis.NewValidator(cfg.Validate.ValidatorSettings(), logger)
	if err != nil {
		return nil, fmt.Errorf("build validator: %w", err)
	}

	var (
		sink        checkpoint.Sink
		checkpoints *checkpoint.Async
	)
	if cfg.Checkpoint.Path != "" {
		file, err := checkpoint.NewFileSink(cfg.Checkpoint.Path)
		if err != nil {
			return nil, fmt.Errorf("open checkpoint sink: %w", err)
		}
		checkpoints = checkpoint.NewAsync(file, cfg.Checkpoint.QueueDepth, logger)
		sink = checkpoints
	}

	eng := engine.New(
		classifier,
		registry,
		resolver,
		synthesizer,
		validator,
		sink,
		nil,
		cfg.Engine.EngineSettings(),
		logger,
	)

	lc := lifecycle.New()
	router := buildRouter(eng, lc, cfg, logger)

	logger.Info(
		"server initialized",
		"addr", cfg.Server.Addr(),
		"domains", len(table.Domains),
		"default_domain", table.DefaultKey(),
		"checkpointing", cfg.Checkpoint.Path != "",
	)

	return &Server{
		logger:      logger,
		lifecycle:   lc,
		engine:      eng,
		embedCache:  embedCache,
		checkpoints: checkpoints,
		http:        newHTTPServer(&cfg.Server, router, logger),
	}, nil
}

func (s *Server) Start() error {
	s.logger.Info("starting service")

	if err := s.http.Start(s.lifecycle); err != nil {
		return err
	}

	go func() {
		s.lifecycle.WaitForStartup()
		s.logger.Info("all subsystems ready")
	}()

	return nil
}

// Shutdown drains the HTTP server through the lifecycle coordinator
// first, so no query is still executing when the embedding cache and the
// checkpoint sink are torn down behind it.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.logger.Info("initiating shutdown")
	err := s.lifecycle.Shutdown(timeout)

	s.embedCache.Stop()
	if s.checkpoints != nil {
		s.checkpoints.Close()
	}

	return err
}
