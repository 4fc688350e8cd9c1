package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sskim91/bookbrain/internal/chunker"
	"github.com/sskim91/bookbrain/internal/config"
	"github.com/sskim91/bookbrain/internal/embedder"
	"github.com/sskim91/bookbrain/internal/parser"
	"github.com/sskim91/bookbrain/internal/repository"
	"github.com/sskim91/bookbrain/internal/service"
	"github.com/sskim91/bookbrain/internal/storage"
)

func SetupRouter(cfg *config.Config, db *gorm.DB, logger *zap.Logger) (*gin.Engine, error) {
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = cfg.MaxUploadSize

	// Health check endpoints
	r.GET("/health", healthCheck)
	r.GET("/ready", readinessCheck(db))
	r.GET("/live", livenessCheck)

	// Root endpoint
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":      "BookBrain",
			"version":      "1.0.0",
			"status":       "running",
			"health_check": "/health",
		})
	})

	// Initialize repositories
	bookRepo := repository.NewBookRepository(db)
	vectorRepo := repository.NewVectorRepository(db)

	// Initialize clients
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

	// Initialize storage
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
			return nil, fmt.Errorf("s3 backend: %w", err)
		}
		remote = s3
	}
	store := storage.NewStore(remote, cfg.PDFStorageDir, cfg.ParsedResultsDir, logger)

	// Initialize services
	chk := BuildChunker(cfg)
	logger.Info("chunking strategy selected",
		zap.String("strategy", cfg.Chunker),
		zap.Int("chunk_size", cfg.ChunkSize),
		zap.Int("overlap", cfg.OverlapSize))
	indexerSvc := service.NewIndexer(
		parseClient, chk, embedClient,
		store, bookRepo, vectorRepo,
		cfg.ParseLanguage, logger,
	)
	searchSvc := service.NewSearcher(embedClient, vectorRepo, bookRepo, logger)

	// Initialize handlers
	bookHandler := NewBookHandler(indexerSvc, bookRepo, vectorRepo, store, logger)
	searchHandler := NewSearchHandler(searchSvc, logger)

	api := r.Group("/api")
	{
		books := api.Group("/books")
		{
			books.POST("", bookHandler.Upload)
			books.GET("", bookHandler.List)
			books.GET("/:id", bookHandler.Get)
			books.DELETE("/:id", bookHandler.Delete)
		}

		api.POST("/search", searchHandler.Search)
	}

	return r, nil
}

// BuildChunker returns the configured chunking strategy. Unknown values fall
// back to the token-window chunker.
func BuildChunker(cfg *config.Config) chunker.Chunker {
	if cfg.Chunker == "sentence" {
		return chunker.NewSentenceChunker(cfg.ChunkSize, chunker.DefaultSentenceOverlap)
	}
	return chunker.NewTokenChunker(cfg.ChunkSize, cfg.OverlapSize)
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "bookbrain",
	})
}

func readinessCheck(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.Ping() != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

func livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}
