// finsight ingests financial statement extraction output into a vector
// store and answers questions over it through specialized agents.
//
// Usage:
//
//	finsight ingest --config finsight.yaml pages.json [more.json ...]
//	finsight query --config finsight.yaml "What was ROE in Q3 2022?"
//	finsight status --config finsight.yaml
//	finsight version
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/finsightai/finsight/agents"
	"github.com/finsightai/finsight/config"
	"github.com/finsightai/finsight/ingest"
	"github.com/finsightai/finsight/llm"
	"github.com/finsightai/finsight/orchestrator"
	"github.com/finsightai/finsight/retrieval"
	"github.com/finsightai/finsight/types"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ingest":
		runIngest(os.Args[2:])
	case "query":
		runQuery(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "version":
		fmt.Printf("finsight %s (built %s)\n", Version, BuildTime)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage:
  finsight ingest [--config file] pages.json [more.json ...]
  finsight query  [--config file] [--statement type] [--from period] [--to period] "question"
  finsight status [--config file]
  finsight version`)
}

type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	gateway  *retrieval.Gateway
	store    retrieval.VectorStore
	pipeline *ingest.Pipeline
	ledger   *ingest.Ledger
	orch     *orchestrator.Orchestrator
}

func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, *zap.Logger, []string) {
	configPath := fs.String("config", "", "path to YAML config file")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger, fs.Args()
}

// buildApp wires the engine. With no LLM API key configured it degrades to
// the local embedder and extractive answers so the pipeline stays usable
// offline.
func buildApp(cfg *config.Config, logger *zap.Logger) *app {
	var embed llm.EmbedFunc
	var provider llm.Provider
	if cfg.LLM.APIKey != "" {
		client := llm.NewOpenAIClient(llm.OpenAIConfig{
			BaseURL:    cfg.LLM.BaseURL,
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.LLM.Model,
			Timeout:    cfg.LLM.Timeout,
			RatePerSec: cfg.LLM.RatePerSec,
		}, logger)
		embed = client.Embed
		provider = client
	} else {
		logger.Warn("no LLM API key configured, using local embedder and extractive answers")
		embed = llm.NewLocalEmbedder(256).Embed
	}

	var store retrieval.VectorStore
	var resolver orchestrator.ChunkResolver
	if cfg.Qdrant.Host != "" && cfg.Qdrant.Host != "none" {
		store = retrieval.NewQdrantStore(retrieval.QdrantConfig{
			Host:                 cfg.Qdrant.Host,
			Port:                 cfg.Qdrant.Port,
			APIKey:               cfg.Qdrant.APIKey,
			Collection:           cfg.Qdrant.Collection,
			Timeout:              cfg.Qdrant.Timeout,
			AutoCreateCollection: true,
		}, logger)
	} else {
		mem := retrieval.NewInMemoryVectorStore(logger)
		store = mem
		resolver = mem
	}

	gateway := retrieval.NewGateway(retrieval.GatewayConfig{
		TopK:            cfg.Retrieval.TopK,
		MaxTopK:         cfg.Retrieval.MaxTopK,
		SimilarityFloor: cfg.Retrieval.SimilarityFloor,
	}, store, embed, logger)

	tok := ingest.NewTokenizer(cfg.Chunking.TokenizerModel, logger)
	detector := ingest.NewBoundaryDetector(logger)
	chunker := ingest.NewChunker(ingest.ChunkerConfig{
		LowerBound: cfg.Chunking.LowerBound,
		UpperBound: cfg.Chunking.UpperBound,
	}, tok, logger)

	ledger, err := ingest.NewLedger(cfg.Ledger.Path, logger)
	if err != nil {
		logger.Warn("ledger unavailable, continuing without ingestion history", zap.Error(err))
		ledger = nil
	}
	pipeline := ingest.NewPipeline(detector, chunker, gateway, ledger, cfg.Chunking.TokenizerModel, logger)

	topK := cfg.Retrieval.TopK
	agentList := []agents.Agent{
		agents.NewCalculationAgent(gateway, topK, logger),
		agents.NewTemporalAgent(gateway, topK, logger),
		agents.NewRiskAgent(gateway, topK, logger),
		agents.NewNarrativeAgent(gateway, provider, topK, logger),
	}

	router := orchestrator.NewRouter(provider, logger)
	orch := orchestrator.New(orchestrator.Config{
		ConfidenceThreshold: cfg.Orchestrator.ConfidenceThreshold,
		MaxRetries:          cfg.Orchestrator.MaxRetries,
		QuestionTimeout:     cfg.Orchestrator.QuestionTimeout,
		BackoffBase:         cfg.Orchestrator.BackoffBase,
		BackoffMax:          cfg.Orchestrator.BackoffMax,
		CollaboratorRetries: cfg.Orchestrator.CollaboratorRetries,
	}, router, agentList, logger)

	if resolver != nil {
		orch = orch.WithResolver(resolver)
	}
	if cfg.Redis.Addr != "" && cfg.Redis.Addr != "none" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unavailable, answer cache disabled", zap.Error(err))
		} else {
			orch = orch.WithCache(orchestrator.NewAnswerCache(client, cfg.Redis.TTL, logger))
		}
	}
	orch = orch.WithMetrics(orchestrator.NewMetrics(nil))

	return &app{cfg: cfg, logger: logger, gateway: gateway, store: store,
		pipeline: pipeline, ledger: ledger, orch: orch}
}

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	cfg, logger, files := loadConfig(fs, args)
	defer logger.Sync()

	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "ingest: no input files")
		os.Exit(2)
	}

	a := buildApp(cfg, logger)

	docs := make([]ingest.Document, 0, len(files))
	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
			os.Exit(1)
		}
		var pages []types.ExtractedPage
		if err := json.Unmarshal(raw, &pages); err != nil {
			fmt.Fprintf(os.Stderr, "parse %s: %v\n", path, err)
			os.Exit(1)
		}
		docID := ""
		if len(pages) > 0 {
			docID = pages[0].DocumentID
		}
		docs = append(docs, ingest.Document{ID: docID, Pages: pages})
	}

	results := a.pipeline.IngestAll(context.Background(), docs)
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", res.DocumentID, res.Err)
			continue
		}
		fmt.Printf("%s: %d boundaries, %d chunks\n", res.DocumentID, res.BoundaryCount, res.ChunkCount)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	statement := fs.String("statement", "", "pin retrieval to one statement type (e.g. balance_sheet)")
	from := fs.String("from", "", `pin the fiscal period range start (e.g. "Q3 2022")`)
	to := fs.String("to", "", `pin the fiscal period range end (e.g. "Q3 2022")`)
	cfg, logger, rest := loadConfig(fs, args)
	defer logger.Sync()

	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "query: no question given")
		os.Exit(2)
	}

	filters, err := buildFilters(*statement, *from, *to)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query: %v\n", err)
		os.Exit(2)
	}

	a := buildApp(cfg, logger)

	answer, err := a.orch.AnswerQuestion(context.Background(), rest[0], filters)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(answer.Text)
	fmt.Printf("\nstatus=%s confidence=%.2f retries=%d\n", answer.Status, answer.Confidence, answer.Retries)
	if answer.Caveat != "" {
		fmt.Printf("caveat: %s\n", answer.Caveat)
	}
	for _, c := range answer.Citations {
		fmt.Printf("  [%s %s] chunk %s\n", c.DocumentID, c.Pages, c.ChunkID)
	}
}

func buildFilters(statement, from, to string) (types.RetrievalFilters, error) {
	var f types.RetrievalFilters
	if statement != "" {
		f.Statement = types.StatementType(statement)
	}
	if from != "" {
		periods := types.ParsePeriods(from)
		if len(periods) == 0 {
			return f, fmt.Errorf("cannot parse period %q", from)
		}
		f.PeriodFrom = &periods[0]
	}
	if to != "" {
		periods := types.ParsePeriods(to)
		if len(periods) == 0 {
			return f, fmt.Errorf("cannot parse period %q", to)
		}
		f.PeriodTo = &periods[len(periods)-1]
	}
	return f, nil
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cfg, logger, _ := loadConfig(fs, args)
	defer logger.Sync()

	a := buildApp(cfg, logger)

	count, err := a.store.Count(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("stored chunks: %d\n", count)

	if a.ledger != nil {
		recs, err := a.ledger.Documents(context.Background())
		if err == nil {
			for _, r := range recs {
				fmt.Printf("  %s: %d chunks, %d boundaries, ingested %s\n",
					r.DocumentID, r.ChunkCount, r.BoundaryCount, r.IngestedAt.Format("2006-01-02 15:04"))
			}
		}
	}
}
