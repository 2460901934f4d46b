package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/helmavik/embedfall"
	"github.com/helmavik/embedfall/config"
	"github.com/helmavik/embedfall/internal/logger"
	"github.com/helmavik/embedfall/internal/precompute"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Input corpus file (CSV, Parquet, or JSON lines)")
		batchSize  = flag.Int("batch-size", 0, "Override configured batch size")
		skipIndex  = flag.Bool("skip-index", false, "Skip creating the vector index after loading")
		showStats  = flag.Bool("stats", false, "Show document count and exit")
	)
	flag.Parse()

	if *inputFile == "" && !*showStats {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input corpus.parquet\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input corpus.csv --batch-size 500\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling run")
		cancel()
	}()

	store, err := precompute.NewStore(cfg.Store, cfg.Engine.Dimensions, log)
	if err != nil {
		log.Fatal("Failed to open vector store", zap.Error(err))
	}
	defer store.Close()

	if *showStats {
		count, err := store.Count()
		if err != nil {
			log.Fatal("Failed to query document count", zap.Error(err))
		}
		fmt.Printf("document_embeddings: %d rows\n", count)
		return
	}

	engine, err := embedfall.New(cfg.Engine, log)
	if err != nil {
		log.Fatal("Failed to create embedding engine", zap.Error(err))
	}
	defer engine.Close()

	status := engine.Initialize(ctx)
	log.Info("Embedding engine ready",
		zap.String("active", status.Active.String()),
		zap.Bool("semantic", engine.SemanticAvailable()))

	opts := precompute.Options{
		BatchSize:     cfg.Precompute.BatchSize,
		CreateIndex:   cfg.Precompute.CreateIndex && !*skipIndex,
		ProgressEvery: cfg.Precompute.ProgressEvery,
	}
	if *batchSize > 0 {
		opts.BatchSize = *batchSize
	}

	pipeline := precompute.NewPipeline(engine, store, opts, log)

	result, err := pipeline.Run(ctx, *inputFile)
	if err != nil {
		log.Fatal("Precompute run failed", zap.Error(err))
	}

	if opts.CreateIndex && result.Embedded > 0 {
		if err := store.CreateIndex(); err != nil {
			log.Fatal("Failed to create vector index", zap.Error(err))
		}
	}

	log.Info("Done",
		zap.Int("total", result.TotalRecords),
		zap.Int("embedded", result.Embedded),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", result.Duration))
}
