package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"coderag/internal/config"
	"coderag/internal/domain"
	"coderag/internal/embedding"
	embopenai "coderag/internal/embedding/openai"
	"coderag/internal/embedding/tfidf"
	llmopenai "coderag/internal/llm/openai"
	"coderag/internal/logger"
	"coderag/internal/nodes"
	"coderag/internal/pipeline"
	"coderag/internal/rank"
	"coderag/internal/retrieval"
	"coderag/internal/tavily"
	"coderag/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ./config.yaml or ~/.config/coderag/config.yaml if not provided)")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, cfgPath, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	zl.Info("config loaded", zap.String("path", cfgPath))

	// Assemble components
	tv, err := tavily.NewClient(tavily.Config{
		BaseURL:        cfg.Tavily.BaseURL,
		APIKeyEnv:      cfg.Tavily.APIKeyEnv,
		SearchDepth:    cfg.Tavily.SearchDepth,
		MaxResults:     cfg.Tavily.MaxResults,
		IncludeDomains: cfg.Tavily.IncludeDomains,
		CrawlLimit:     cfg.Tavily.CrawlLimit,
		CrawlDepth:     cfg.Tavily.CrawlDepth,
		CrawlBreadth:   cfg.Tavily.CrawlBreadth,
		SelectPaths:    cfg.Tavily.SelectPaths,
		ExtractDepth:   cfg.Tavily.ExtractDepth,
	}, nil)
	if err != nil {
		log.Fatalf("tavily client init failed: %v", err)
	}

	chat, err := llmopenai.NewClient(llmopenai.Config{
		BaseURL:   cfg.LLM.BaseURL,
		APIKeyEnv: cfg.LLM.APIKeyEnv,
		Model:     cfg.LLM.Model,
		Timeout:   time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	}, nil)
	if err != nil {
		log.Fatalf("llm client init failed: %v", err)
	}

	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "openai", "":
		if cfg.Embedder.OpenAI == nil {
			log.Fatalf("openai embedder config missing")
		}
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		}, nil)
		if err != nil {
			log.Fatalf("openai embedder init failed: %v", err)
		}
		emb = client
	case "tfidf":
		emb = tfidf.NewEmbedder()
	default:
		log.Fatalf("unknown embedder: %s", cfg.Embedder.Type)
	}
	cached, err := embedding.NewCached(emb, cfg.Embedder.CacheSize)
	if err != nil {
		log.Fatalf("embedding cache init failed: %v", err)
	}

	var strategy rank.Strategy
	switch rank.Strategy(cfg.Ranker.Strategy) {
	case rank.StrategyPrefix, "":
		strategy = rank.StrategyPrefix
	case rank.StrategyChunks:
		strategy = rank.StrategyChunks
	default:
		log.Fatalf("unknown ranker strategy: %s", cfg.Ranker.Strategy)
	}
	ranker := rank.New(cached, rank.Config{
		Strategy:       strategy,
		SignatureChars: cfg.Ranker.SignatureChars,
		BatchSize:      cfg.Ranker.BatchSize,
		ChunkSize:      cfg.Ranker.ChunkSize,
		ChunkOverlap:   cfg.Ranker.ChunkOverlap,
	}, zl.Named("rank"))

	agg := retrieval.NewAggregator(tv, tv, tv, retrieval.Config{
		CrawlTimeout: time.Duration(cfg.Tavily.CrawlTimeout) * time.Second,
		BatchSize:    cfg.Tavily.ExtractBatch,
	}, zl.Named("retrieval"))

	console := tui.New(os.Stdin, os.Stdout)
	temps := cfg.LLM.Temperature
	nl := zl.Named("nodes")
	graph, err := pipeline.Standard(pipeline.Stages{
		Plan:    nodes.NewPlanner(chat, temps.Planner, nl),
		Search:  nodes.NewSearch(agg, nl),
		Filter:  nodes.NewFilter(chat, temps.Filter, nl),
		Draft:   nodes.NewDrafter(chat, temps.Drafter, nl),
		Crawl:   nodes.NewCrawl(agg, nl),
		Extract: nodes.NewExtract(agg, nl),
		Rank:    nodes.NewRank(ranker, nl),
		Refine:  nodes.NewRefiner(chat, temps.Refiner, cfg.Ranker.TopK, cfg.Ranker.ExampleChars, nl),
		Respond: nodes.NewResponder(chat, console, temps.Followup, nl),
	})
	if err != nil {
		log.Fatalf("pipeline init failed: %v", err)
	}
	orch, err := pipeline.NewOrchestrator(graph, cfg.Pipeline.MaxSteps, zl)
	if err != nil {
		log.Fatalf("pipeline init failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	problem, err := console.Ask(ctx, "Describe the coding problem to solve")
	if errors.Is(err, domain.ErrAborted) || (err == nil && problem == "") {
		console.Say(nodes.DefaultGoodbye)
		return
	}
	if err != nil {
		log.Fatalf("failed to read problem: %v", err)
	}

	final, err := orch.Run(ctx, domain.NewState(problem))
	if err != nil {
		zl.Error("run failed", zap.Error(err))
		var se *pipeline.StageError
		if errors.As(err, &se) {
			fmt.Fprintf(os.Stderr, "stage %s failed: %v\n", se.Stage, se.Err)
		} else {
			fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		}
		_ = zl.Sync()
		os.Exit(1)
	}
	zl.Info("session closed",
		zap.String("status", string(final.Status)),
		zap.Int("messages", len(final.Conversation)),
		zap.Int("cached_embeddings", cached.Len()),
	)
}
