package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sskim91/bookbrain/internal/config"
	"github.com/sskim91/bookbrain/internal/database"
	"github.com/sskim91/bookbrain/internal/embedder"
	"github.com/sskim91/bookbrain/internal/handler"
	"github.com/sskim91/bookbrain/internal/parser"
	"github.com/sskim91/bookbrain/internal/repository"
	"github.com/sskim91/bookbrain/internal/service"
	"github.com/sskim91/bookbrain/internal/storage"
)

var (
	flagDir          string
	flagConcurrency  int
	flagSkipExisting bool
	flagLanguage     string
)

func main() {
	cmd := &cobra.Command{
		Use:   "batchindex",
		Short: "Index every PDF in a directory",
		Long:  "Walks a directory of PDF files and runs the full parse, chunk, embed and store pipeline for each one.",
		RunE:  run,
	}

	cmd.Flags().StringVar(&flagDir, "dir", "", "directory containing PDF files (required)")
	cmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "number of parallel workers (default from config)")
	cmd.Flags().BoolVar(&flagSkipExisting, "skip-existing", true, "skip files whose title is already indexed")
	cmd.Flags().StringVar(&flagLanguage, "language", "", "parse language override (default from config)")
	cmd.MarkFlagRequired("dir")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if flagLanguage != "" {
		cfg.ParseLanguage = flagLanguage
	}
	workers := cfg.BatchWorkers
	if flagConcurrency > 0 {
		workers = flagConcurrency
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	bookRepo := repository.NewBookRepository(db)
	vectorRepo := repository.NewVectorRepository(db)

	parseClient := parser.NewClient(
		cfg.ParseAPIBaseURL,
		cfg.ParseAPIKey,
		cfg.ParseTimeout(),
		cfg.ParsePollInterval(),
		cfg.ParseMaxPollAttempts,
		logger,
	)
	embedClient := embedder.NewClient(
		cfg.EmbeddingAPIKey,
		cfg.EmbeddingBaseURL,
		cfg.EmbeddingModel,
		cfg.EmbeddingDimensions,
		cfg.EmbeddingBatchSize,
		cfg.EmbeddingMaxRetries,
		cfg.EmbeddingRetryBaseDelay(),
		logger,
	)

	var remote storage.Backend
	if cfg.S3Enabled {
		s3, err := storage.NewS3Backend(
			cfg.S3EndpointURL,
			cfg.S3AccessKey,
			cfg.S3SecretKey,
			cfg.S3Region,
			cfg.S3BucketName,
			cfg.S3UseSSL,
		)
		if err != nil {
			return fmt.Errorf("s3 backend: %w", err)
		}
		remote = s3
	}
	store := storage.NewStore(remote, cfg.PDFStorageDir, cfg.ParsedResultsDir, logger)

	indexer := service.NewIndexer(
		parseClient, handler.BuildChunker(cfg), embedClient,
		store, bookRepo, vectorRepo,
		cfg.ParseLanguage, logger,
	)
	batch := service.NewBatchIndexer(indexer, workers, logger)

	summary, err := batch.IndexDirectory(context.Background(), flagDir, flagSkipExisting)
	if err != nil {
		return err
	}

	for _, res := range summary.Outcomes {
		switch {
		case res.Err != nil:
			fmt.Printf("FAIL    %s: %v\n", res.FilePath, res.Err)
		case res.Outcome.Skipped:
			fmt.Printf("SKIP    %s: %s\n", res.FilePath, res.Outcome.SkipReason)
		default:
			fmt.Printf("INDEXED %s: %d chunks\n", res.FilePath, res.Outcome.ChunksCount)
		}
	}
	fmt.Printf("done: %d indexed, %d skipped, %d failed\n",
		summary.Indexed, summary.Skipped, summary.Failed)

	if summary.Failed > 0 {
		return fmt.Errorf("%d file(s) failed", summary.Failed)
	}
	return nil
}
