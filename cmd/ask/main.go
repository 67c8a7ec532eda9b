// Command ask runs a single query through the answering workflow from the
// terminal, using the same configuration surface as the server.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/structa/switchboard/internal/capability"
	"github.com/structa/switchboard/internal/classify"
	"github.com/structa/switchboard/internal/config"
	"github.com/structa/switchboard/internal/crossref"
	"github.com/structa/switchboard/internal/engine"
	"github.com/structa/switchboard/internal/qa"
	"github.com/structa/switchboard/internal/retrieval"
	"github.com/structa/switchboard/internal/specialist"
	"github.com/structa/switchboard/internal/synthesis"
)

type options struct {
	product string
	version string
	docType string
	timeout time.Duration
	verbose bool
}

func main() {
	godotenv.Load()

	opts := &options{}

	root := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a documentation question with cited sources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(cmd, args[0], opts)
		},
	}

	root.Flags().StringVar(&opts.product, "product", "", "restrict retrieval to a product")
	root.Flags().StringVar(&opts.version, "version", "", "restrict retrieval to a product version")
	root.Flags().StringVar(&opts.docType, "doc-type", "", "restrict retrieval to a document type")
	root.Flags().DurationVar(&opts.timeout, "timeout", 0, "overall query deadline (default from config)")
	root.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log workflow progress")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, question string, opts *options) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))

	eng, cleanup, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	var deadline time.Time
	if opts.timeout > 0 {
		deadline = time.Now().Add(opts.timeout)
	}

	filters := qa.Filters{
		Product: opts.product,
		Version: opts.version,
		DocType: opts.docType,
	}

	q, err := qa.NewQuery(question, filters, "", deadline)
	if err != nil {
		return err
	}

	answer, err := eng.Execute(cmd.Context(), q)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, answer.Text)
	if len(answer.Citations) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Sources:")
		for _, c := range answer.Citations {
			fmt.Fprintf(out, "  [%d] %s (%s)\n", c.Index, c.ChunkID, c.DocumentID)
		}
	}
	fmt.Fprintf(out, "\nstatus: %s  confidence: %.2f\n", answer.Status, answer.Confidence)

	return nil
}

func buildEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, func(), error) {
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
		return nil, nil, fmt.Errorf("load domain table: %w", err)
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
		return nil, nil, fmt.Errorf("build validator: %w", err)
	}

	eng := engine.New(
		classifier,
		registry,
		resolver,
		synthesizer,
		validator,
		nil,
		nil,
		cfg.Engine.EngineSettings(),
		logger,
	)

	return eng, embedCache.Stop, nil
}
