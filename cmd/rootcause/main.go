// Package main is the rootcause CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/rootcause/internal/cli"
	"github.com/hyperjump/rootcause/internal/config"
	"github.com/hyperjump/rootcause/internal/embedding"
	"github.com/hyperjump/rootcause/internal/ingest"
	"github.com/hyperjump/rootcause/internal/keyword"
	"github.com/hyperjump/rootcause/internal/llm"
	"github.com/hyperjump/rootcause/internal/metrics"
	"github.com/hyperjump/rootcause/internal/models"
	"github.com/hyperjump/rootcause/internal/narrow"
	"github.com/hyperjump/rootcause/internal/search"
	"github.com/hyperjump/rootcause/internal/server"
	"github.com/hyperjump/rootcause/internal/storage"
	"github.com/hyperjump/rootcause/internal/vector"
	"github.com/hyperjump/rootcause/internal/watcher"
	"github.com/hyperjump/rootcause/pkg/utils"
)

var version = "dev"

// loadConfig loads config from path. An empty path picks up ./config.yaml when present
// and otherwise runs on defaults. Returns the config and the path that was loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				path = fallback
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// A missing .env is fine; the environment may already carry the keys.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "diagnose":
		runDiagnose()
	case "narrow":
		runNarrow()
	case "ingest":
		runIngest()
	case "index":
		runIndex()
	case "lookup":
		runLookup()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("rootcause version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config, builds the logger and initializes every component. Failures exit.
func setup(configPath string, debugFlag, rebuild bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewFileLogger(debugMode, utils.FileLogConfig{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))

	components, err := initializeComponents(context.Background(), cfg, logger, rebuild)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path (default: ./config.yaml if present)")
	debug := fs.Bool("debug", false, "enable debug logging")
	noWatch := fs.Bool("no-watch", false, "do not watch directories for new fault files")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug, false)
	defer logger.Sync()
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []server.Option{server.WithCatalog(components.Catalog)}
	if components.Proposer != nil {
		registry := narrow.NewRegistry(cfg.Narrow.MaxDialogues, cfg.Narrow.DialogueTTL)
		opts = append(opts, server.WithNarrowing(components.Proposer, registry))
	}

	var watch *watcher.Watcher
	if !*noWatch && len(cfg.Watch.Directories) > 0 {
		watch = watcher.New(cfg.Watch.Directories,
			watcher.IngestFiles(components.Ingester, logger),
			watcher.WithLogger(logger),
			watcher.WithDebounce(cfg.Watch.Debounce),
			watcher.WithExtensions(cfg.Watch.Extensions...),
		)
		opts = append(opts, server.WithWatch(watch))
	}

	srv := server.NewServer(components.Engine, components.Ingester, cfg, logger, opts...)

	g, gctx := errgroup.WithContext(ctx)
	if watch != nil {
		if err := watch.Start(gctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		g.Go(func() error {
			watch.SyncExisting()
			<-gctx.Done()
			watch.Stop()
			return nil
		})
	}
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("Server failed", zap.Error(err))
		os.Exit(1)
	}
}

// buildQuery joins all positional args with spaces so multi-word queries work the same
// with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the query to the
// front of the slice so that flag.Parse() sees them. Go's flag package stops at the
// first non-flag argument, so `rootcause diagnose "pump leaks" -top-k 3` would otherwise
// leave -top-k unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

type diagnoseFlags struct {
	configPath    *string
	component     *string
	model         *string
	topK          *int
	minSimilarity *float64
	output        *string
}

func newDiagnoseFlagSet(name string) (*flag.FlagSet, diagnoseFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return fs, diagnoseFlags{
		configPath:    fs.String("config", "", "config file path"),
		component:     fs.String("component", "", "restrict to one component"),
		model:         fs.String("model", "", "restrict to one model"),
		topK:          fs.Int("top-k", 0, "number of candidates (default from config)"),
		minSimilarity: fs.Float64("min-similarity", -1, "hide candidates below this similarity (default from config)"),
		output:        fs.String("output", "text", "output format: text or json"),
	}
}

// diagnoseQuery builds the query from flags, filling unset values from config.
func diagnoseQuery(text string, f diagnoseFlags, cfg *config.Config) *models.DiagnoseQuery {
	q := &models.DiagnoseQuery{
		Query:         text,
		Component:     *f.component,
		Model:         *f.model,
		TopK:          *f.topK,
		MinSimilarity: *f.minSimilarity,
	}
	if q.TopK == 0 {
		q.TopK = cfg.Search.DefaultTopK
	}
	if q.MinSimilarity < 0 {
		q.MinSimilarity = cfg.Search.MinSimilarity
	}
	return q
}

func runDiagnose() {
	fs, f := newDiagnoseFlagSet("diagnose")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	text := buildQuery(fs.Args())
	if text == "" {
		fmt.Println("Usage: rootcause diagnose [flags] <symptom description>")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*f.output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, logger, components := setup(*f.configPath, false, false)
	defer logger.Sync()
	defer components.Close()

	candidates, err := components.Engine.Diagnose(context.Background(), diagnoseQuery(text, f, cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Diagnose failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteCandidates(os.Stdout, text, candidates, format)
}

func runNarrow() {
	fs, f := newDiagnoseFlagSet("narrow")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	text := buildQuery(fs.Args())
	if text == "" {
		fmt.Println("Usage: rootcause narrow [flags] <symptom description>")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*f.output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, logger, components := setup(*f.configPath, false, false)
	defer logger.Sync()
	defer components.Close()
	if components.Proposer == nil {
		fmt.Fprintln(os.Stderr, "Narrowing needs an LLM provider; set llm.provider in the config or OPENAI_API_KEY.")
		os.Exit(1)
	}

	ctx := context.Background()
	candidates, err := components.Engine.Diagnose(ctx, diagnoseQuery(text, f, cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Diagnose failed: %v\n", err)
		os.Exit(1)
	}
	if len(candidates) == 0 {
		_ = cli.WriteCandidates(os.Stdout, text, nil, format)
		return
	}
	_ = cli.WriteCandidates(os.Stderr, text, candidates, cli.OutputText)

	d := narrow.NewDialogue(text, candidates, narrow.Options{
		MaxSteps:        cfg.Narrow.MaxSteps,
		ShortlistTarget: cfg.Narrow.ShortlistTarget,
		GapThreshold:    cfg.Narrow.GapThreshold,
	})
	err = cli.RunDialogue(ctx, os.Stdin, os.Stderr, d, components.Proposer)
	if err != nil && !errors.Is(err, cli.ErrAborted) {
		fmt.Fprintf(os.Stderr, "Narrowing failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteOutcome(os.Stdout, d.Outcome(), format)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() < 1 {
		fmt.Println("Usage: rootcause ingest [flags] <file.csv|file.xlsx> [...]")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	_, logger, components := setup(*configPath, false, false)
	defer logger.Sync()
	defer components.Close()

	for _, path := range fs.Args() {
		records, err := ingest.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", path, err)
			os.Exit(1)
		}
		res, err := components.Ingester.Ingest(context.Background(), records, filepath.Base(path))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest of %s failed: %v\n", path, err)
			os.Exit(1)
		}
		_ = cli.WriteIngestResult(os.Stdout, res, format)
	}
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	rebuild := fs.Bool("rebuild", false, "re-embed the seed file and replace the stored index")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format, err := cli.ParseFormat(*output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	_, logger, components := setup(*configPath, false, *rebuild)
	defer logger.Sync()
	defer components.Close()

	_ = cli.WriteIngestResult(os.Stdout, components.Bootstrap, format)
	fmt.Fprintf(os.Stderr, "Index holds %d record(s) in %s\n", components.Store.Len(), components.Store.Dir())
}

func runLookup() {
	fs := flag.NewFlagSet("lookup", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	component := fs.String("component", "", "restrict to one component")
	limit := fs.Int("limit", 10, "maximum number of records")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	terms := buildQuery(fs.Args())
	if terms == "" {
		fmt.Println("Usage: rootcause lookup [flags] <keywords>")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	_, logger, components := setup(*configPath, false, false)
	defer logger.Sync()
	defer components.Close()

	hits, err := components.Engine.Lookup(context.Background(), terms, *component, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lookup failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteHits(os.Stdout, terms, hits, format)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format, err := cli.ParseFormat(*output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, logger, components := setup(*configPath, false, false)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	catalogRows, err := components.Catalog.Count(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Count catalog failed: %v\n", err)
		os.Exit(1)
	}
	usage, err := storage.MeasureUsage(map[string]string{
		"index":    components.Store.Dir(),
		"catalog":  cfg.Storage.DatabasePath,
		"keywords": cfg.Storage.KeywordIndexPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Measure disk usage failed: %v\n", err)
		os.Exit(1)
	}
	llmName := "none"
	if cfg.LLM.Enabled() {
		llmName = cfg.LLM.Provider + "/" + cfg.LLM.Model
	}
	_ = cli.WriteStatus(os.Stdout, cli.Status{
		Rows:        components.Store.Len(),
		CatalogRows: catalogRows,
		Dimensions:  components.Store.Dimensions(),
		VectorIndex: components.Store.NativeIndex(),
		Components:  components.Store.Components(),
		Embedding:   cfg.Embedding.Provider + "/" + cfg.Embedding.Model,
		LLM:         llmName,
		DiskUsage:   usage,
	}, format)
}

// Components holds initialized services.
type Components struct {
	Embedder embedding.Embedder
	Store    *vector.Store
	Catalog  *storage.SQLiteCatalog
	Keywords *keyword.BleveIndex
	Engine   *search.Engine
	Ingester *ingest.Ingester
	Proposer narrow.QuestionProposer // nil when no LLM is configured
	// Bootstrap is the result of loading or building the store at startup.
	Bootstrap ingest.Result
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Keywords != nil {
		_ = c.Keywords.Close()
	}
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, rebuild bool) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	emb, err := embedding.New(embedding.Options{
		Provider:          cfg.Embedding.Provider,
		Model:             cfg.Embedding.Model,
		Dimensions:        cfg.Embedding.Dimensions,
		BatchSize:         cfg.Embedding.BatchSize,
		CacheSize:         cfg.Embedding.CacheSize,
		OpenAIKey:         cfg.Embedding.APIKey,
		OpenAIBaseURL:     cfg.Embedding.BaseURL,
		OllamaHost:        cfg.Embedding.BaseURL,
		ONNXModelPath:     cfg.Embedding.ModelPath,
		MaxTokens:         cfg.Embedding.MaxTokens,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Timeout:           cfg.Embedding.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = metrics.InstrumentEmbedder(emb, cfg.Embedding.Provider)

	indexType, err := vector.ParseIndexType(cfg.Storage.IndexType)
	if err != nil {
		return nil, err
	}
	if c.Store, err = vector.NewStore(cfg.Storage.IndexDir, vector.WithIndexType(indexType), vector.WithLogger(logger)); err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	if c.Catalog, err = storage.NewSQLiteCatalog(cfg.Storage.DatabasePath); err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}
	if c.Keywords, err = keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath); err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	c.Engine = search.NewEngine(c.Embedder, c.Store, search.WithKeywordIndex(c.Keywords), search.WithLogger(logger))
	c.Ingester = ingest.NewIngester(c.Embedder, c.Store,
		ingest.WithCatalog(c.Catalog),
		ingest.WithKeywordIndex(c.Keywords),
		ingest.WithLogger(logger),
	)
	if c.Bootstrap, err = c.Ingester.Bootstrap(ctx, cfg.Storage.SeedFile, rebuild); err != nil {
		return nil, fmt.Errorf("failed to load fault records: %w", err)
	}
	metrics.StoreRecords.Set(float64(c.Store.Len()))
	logger.Info("fault records ready",
		zap.Int("rows", c.Store.Len()),
		zap.Int("dimensions", c.Store.Dimensions()),
		zap.String("vector_index", c.Store.NativeIndex()),
	)

	if cfg.LLM.Enabled() {
		provider, err := llm.New(llm.Options{
			Provider:          cfg.LLM.Provider,
			Model:             cfg.LLM.Model,
			BaseURL:           cfg.LLM.BaseURL,
			APIKey:            cfg.LLM.APIKey,
			Temperature:       cfg.LLM.Temperature,
			MaxTokens:         cfg.LLM.MaxTokens,
			RequestsPerSecond: cfg.LLM.RequestsPerSecond,
			Timeout:           cfg.LLM.Timeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize llm provider: %w", err)
		}
		c.Proposer = narrow.NewProposer(metrics.InstrumentProvider(provider),
			narrow.WithMaxAttempts(cfg.Narrow.MaxAttempts),
			narrow.WithLogger(logger),
		)
	}
	ok = true
	return c, nil
}

func printUsage() {
	fmt.Println(`rootcause - Fault diagnosis over a knowledge base of known failures

Usage:
  rootcause server [flags]            Start the HTTP server (and directory watcher)
  rootcause diagnose [flags] <text>   Rank known faults by similarity to a symptom
  rootcause narrow [flags] <text>     Diagnose, then answer yes/no questions to narrow down
  rootcause ingest [flags] <file>...  Add fault records from CSV or XLSX files
  rootcause index [--rebuild]         Build or refresh the index from the seed file
  rootcause lookup [flags] <words>    Keyword lookup over stored records (typo tolerant)
  rootcause status [flags]            Show store, catalog and provider status
  rootcause version                   Show version
  rootcause help                      Show this help

Common Flags:
  --config string    Config file path (default: ./config.yaml if present)
  --output string    Output format: text or json (default: text)

Server Flags:
  --debug            Enable debug logging
  --no-watch         Do not watch directories for new fault files

Diagnose / Narrow Flags:
  --component string        Restrict to one component
  --model string            Restrict to one model
  --top-k int               Number of candidates (default from config, max 50)
  --min-similarity float    Hide candidates below this similarity

Environment:
  OPENAI_API_KEY   enables the OpenAI embedding and question providers
  DATA_DIR         data directory (index, catalog, keyword index)
  FAULTS_CSV       seed file of known faults
  EMBED_MODEL      embedding model name
  EMBED_BATCH      embedding batch size
  OLLAMA_HOST      Ollama base URL

Examples:
  rootcause server
  rootcause diagnose pump is vibrating and noisy
  rootcause diagnose --component pump --top-k 3 "seal leaking"
  rootcause narrow "motor smells burnt"
  rootcause ingest new_faults.xlsx
  rootcause index --rebuild
  rootcause lookup --component pump seel leaking`)
}
