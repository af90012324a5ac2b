package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"docuchat/internal/config"
	"docuchat/internal/embedding"
	"docuchat/internal/helper"
	"docuchat/internal/index"
	"docuchat/internal/ingest"
	"docuchat/internal/llmservice"
	"docuchat/internal/models"
	"docuchat/internal/rag"
	"docuchat/internal/retriever"
	"docuchat/internal/workflow"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	_ = godotenv.Load()

	ingestDir := flag.String("ingest", "", "Directory of documents to ingest into the index")
	question := flag.String("ask", "", "Question to answer over the indexed documents")
	sessionID := flag.String("session", "", "Chat session id, optional")
	chat := flag.Bool("chat", false, "Interactive multi-turn chat on stdin")
	request := flag.String("workflow", "", "Run a multi-agent analysis workflow for the request")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.LoadConfig(configFilePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}

	ctx := context.Background()
	switch {
	case *ingestDir != "":
		runIngest(ctx, cfg, *ingestDir)
	case *question != "":
		runAsk(ctx, cfg, *sessionID, *question)
	case *chat:
		runChat(ctx, cfg, *sessionID)
	case *request != "":
		runWorkflow(ctx, cfg, *request)
	default:
		log.Fatal().Msg("Please provide a directory via -ingest, a question via -ask, a request via -workflow, or start a conversation with -chat")
	}
}

func runIngest(ctx context.Context, cfg *config.Config, dir string) {
	batcher, err := buildBatcher(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	idx, cleanup, err := buildIndex(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening index")
	}
	defer cleanup()

	ingestor := ingest.New(batcher, idx, ingest.Options{
		ChunkSize:     cfg.RAG.ChunkSize,
		ChunkOverlap:  cfg.RAG.ChunkOverlap,
		Workers:       cfg.RAG.Workers,
		SourceBaseURL: cfg.RAG.SourceBaseURL,
	})
	report, err := ingestor.IngestDirectory(ctx, dir)
	if err != nil {
		log.Fatal().Err(err).Msg("Error ingesting directory")
	}
	helper.PrettyPrint(report)
}

func runAsk(ctx context.Context, cfg *config.Config, sessionID, question string) {
	orchestrator, cleanup := buildOrchestrator(ctx, cfg)
	defer cleanup()
	askOnce(ctx, orchestrator, sessionID, question)
}

func runChat(ctx context.Context, cfg *config.Config, sessionID string) {
	orchestrator, cleanup := buildOrchestrator(ctx, cfg)
	defer cleanup()

	if sessionID == "" {
		sessionID = orchestrator.Session("").ID
	}
	fmt.Printf("Session %s. Type a question, or an empty line to quit.\n", sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			return
		}
		askOnce(ctx, orchestrator, sessionID, question)
	}
}

func askOnce(ctx context.Context, orchestrator *rag.Orchestrator, sessionID, question string) {
	answer, err := orchestrator.Ask(ctx, sessionID, question)
	if err != nil {
		log.Error().Err(err).Msg("Error answering question")
		return
	}

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", answer.Answer)

	if len(answer.Sources) > 0 {
		log.Info().Msg("Sources: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		for _, src := range answer.Sources {
			fmt.Printf("  [%d] %s %s\n", src.Ordinal, src.FileName, src.SourceURL)
		}
		fmt.Println()
	}
}

func runWorkflow(ctx context.Context, cfg *config.Config, request string) {
	batcher, err := buildBatcher(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	idx, cleanup, err := buildIndex(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening index")
	}
	defer cleanup()
	completer, err := llmservice.NewClient(&cfg.InferenceLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing completion client")
	}

	runner := workflow.NewRunner(completer, retriever.New(batcher, idx, cfg.RAG.DedupeByFile), workflow.Options{})
	w, err := runner.Run(ctx, request)
	if err != nil {
		log.Fatal().Err(err).Msg("Error running workflow")
	}

	log.Info().Str("workflow", w.ID).Int("iterations", w.Iterations).Int("steps", len(w.Steps)).Msg("Workflow finished")
	fmt.Printf("%s\n", w.FinalOutput)
}

func buildOrchestrator(ctx context.Context, cfg *config.Config) (*rag.Orchestrator, func()) {
	batcher, err := buildBatcher(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	idx, cleanup, err := buildIndex(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening index")
	}
	completer, err := llmservice.NewClient(&cfg.InferenceLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing completion client")
	}

	r := retriever.New(batcher, idx, cfg.RAG.DedupeByFile)
	orchestrator := rag.NewOrchestrator(r, completer, rag.Options{
		TopK:         cfg.RAG.TopK,
		ContextChars: cfg.RAG.ContextChars,
		HistoryTurns: cfg.RAG.HistoryTurns,
	})
	return orchestrator, cleanup
}

func buildBatcher(cfg *config.Config) (*embedding.Batcher, error) {
	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}
	retry := embedding.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.RAG.MaxAttempts
	return embedding.NewBatcher(embedder, cfg.RAG.BatchSize, cfg.RAG.MaxItemChars, retry), nil
}

func buildIndex(ctx context.Context, cfg *config.Config) (index.Index, func(), error) {
	switch cfg.Index.Driver {
	case "postgres":
		sqldb := index.ConnectDB(&cfg.Index)
		idx := index.NewPostgres(sqldb, cfg.Index.Debug)
		if err := idx.Init(ctx); err != nil {
			return nil, nil, err
		}
		return idx, func() { _ = idx.Close() }, nil
	case "", "local":
		if err := helper.CreateFolder(cfg.Index.Path); err != nil {
			return nil, nil, err
		}
		idx, err := index.NewLocal(cfg.Index.Path, cfg.Index.Collection, false)
		if err != nil {
			return nil, nil, err
		}
		return idx, func() {}, nil
	default:
		return nil, nil, &models.IndexError{Op: "open", Err: fmt.Errorf("unknown index driver: %s", cfg.Index.Driver)}
	}
}
