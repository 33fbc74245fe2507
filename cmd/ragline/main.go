package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/panjf2000/ants/v2"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/ai"
	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/db"
	"github.com/ragline/ragline/internal/handler"
	"github.com/ragline/ragline/internal/job"
	"github.com/ragline/ragline/internal/middleware"
	"github.com/ragline/ragline/internal/repo"
	"github.com/ragline/ragline/internal/schedule"
	"github.com/ragline/ragline/internal/service"
	"github.com/ragline/ragline/internal/ws"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "ragline",
		Short: "ragline assistant backend",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run ragline server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			database, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(database); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, database)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, database *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)

	userRepo := repo.NewUserRepo(database)
	convRepo := repo.NewConversationRepo(database)
	msgRepo := repo.NewMessageRepo(database)
	chunkRepo := repo.NewChunkRepo(database)

	providerArgs := cfg.AI.Data
	if providerArgs == nil {
		providerArgs = cfg.AI
	}
	aiProvider, err := ai.NewProvider(cfg.AI.Provider, providerArgs)
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}
	embedArgs := cfg.Embedding.Data
	if embedArgs == nil {
		embedArgs = cfg.Embedding
	}
	embedProvider, err := ai.NewEmbedProvider(cfg.Embedding.Provider, embedArgs)
	if err != nil {
		return fmt.Errorf("init embedding provider: %w", err)
	}
	gateway := ai.NewEmbeddingGateway(
		embedProvider,
		cfg.Embedding.Model,
		cfg.Embedding.Dimension,
		time.Duration(cfg.Embedding.Timeout)*time.Second,
	)

	// The embedding column is fixed-width; refuse to start against a schema
	// whose dimension does not match the configured provider.
	columnDim, err := chunkRepo.Dimension(context.Background())
	if err != nil {
		return fmt.Errorf("check embedding column: %w", err)
	}
	if columnDim != gateway.Dimension() {
		return fmt.Errorf("embedding dimension mismatch: column has %d, config wants %d", columnDim, gateway.Dimension())
	}

	chunker, err := ai.NewChunker(cfg.Knowledge.ChunkSize, cfg.Knowledge.Overlap)
	if err != nil {
		return fmt.Errorf("init chunker: %w", err)
	}
	pool, err := ants.NewPool(cfg.Knowledge.PoolSize)
	if err != nil {
		return fmt.Errorf("init worker pool: %w", err)
	}
	defer pool.Release()

	knowledgeSvc := service.NewKnowledgeService(chunkRepo, gateway, chunker, pool, cfg.Knowledge.TopK)
	generationSvc := service.NewGenerationService(
		aiProvider,
		cfg.AI.Model,
		time.Duration(cfg.AI.Timeout)*time.Second,
		knowledgeSvc,
	)

	txRunner := func(ctx context.Context, fn func(q repo.DBTX) error) error {
		return repo.WithTx(ctx, database, func(tx *sql.Tx) error { return fn(tx) })
	}
	hub := ws.NewHub()
	chatSvc := service.NewChatService(userRepo, convRepo, msgRepo, generationSvc, hub, txRunner, cfg.AssistantName)
	hub.SetProcessor(chatSvc)

	deps := handler.RouterDeps{
		Knowledge:     handler.NewKnowledgeHandler(knowledgeSvc, cfg.Knowledge.MaxUploadBytes),
		Conversations: handler.NewConversationHandler(chatSvc),
		Health:        handler.NewHealthHandler(database),
		Hub:           hub,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if cfg.Knowledge.ReembedCron != "" {
		if err := scheduler.AddJob(job.NewReembedJob(chunkRepo, gateway), cfg.Knowledge.ReembedCron); err != nil {
			return fmt.Errorf("schedule reembed job: %w", err)
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
