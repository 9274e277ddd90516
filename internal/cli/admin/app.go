package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/meddocs/internal/config"
	"github.com/cloo-solutions/meddocs/internal/database"
	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/drive"
	"github.com/cloo-solutions/meddocs/internal/extract"
	"github.com/cloo-solutions/meddocs/internal/gemini"
	"github.com/cloo-solutions/meddocs/internal/hugot"
	"github.com/cloo-solutions/meddocs/internal/jobs"
	"github.com/cloo-solutions/meddocs/internal/lock"
	"github.com/cloo-solutions/meddocs/internal/logger"
	"github.com/cloo-solutions/meddocs/internal/openai"
	"github.com/cloo-solutions/meddocs/internal/repository"
	"github.com/cloo-solutions/meddocs/internal/service"
	"github.com/cloo-solutions/meddocs/internal/storage"
	"github.com/cloo-solutions/meddocs/internal/vectorstore/memory"
	"github.com/cloo-solutions/meddocs/internal/vectorstore/qdrant"
)

// App is the fully wired service graph shared by every command.
type App struct {
	Config *config.Config
	Pool   *pgxpool.Pool

	Documents *service.DocumentService
	Reports   *service.ReportService
	Chat      *service.ChatService
	Retriever *service.Retriever
	Drive     *drive.Client // nil unless Drive credentials are configured

	Jobs      *repository.ProcessingJobRepository
	Processor *jobs.ProcessingWorker
	Worker    *jobs.Worker

	closers []func() error
	log     *logger.Logger
}

// NewApp connects to every configured backend. Callers must Close it.
func NewApp(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	app := &App{Config: cfg, log: logger.New("app")}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL, MaxConns: cfg.DatabaseMaxConns, ConnectAttempts: 5})
	if err != nil {
		return nil, err
	}
	app.Pool = pool
	app.closers = append(app.closers, func() error { pool.Close(); return nil })

	files, err := newFileStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := app.newVectorStore(cfg, pool)
	if err != nil {
		return nil, err
	}

	var models gemini.ModelsAPI
	if cfg.EmbeddingProvider == "gemini" || cfg.GeneratorProvider == "gemini" {
		if models, err = gemini.NewModels(ctx, cfg.GoogleAPIKey); err != nil {
			return nil, err
		}
	}

	embedder, err := app.newEmbedder(cfg, models)
	if err != nil {
		return nil, err
	}
	generator, err := newGenerator(cfg, models)
	if err != nil {
		return nil, err
	}

	locker, err := app.newLocker(ctx, cfg)
	if err != nil {
		return nil, err
	}

	documentRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	reportRepo := repository.NewReportRepository(pool)
	conversationRepo := repository.NewConversationRepository(pool)
	app.Jobs = repository.NewProcessingJobRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	index := service.NewIndex(store, embedder)
	app.Retriever = service.NewRetriever(index)

	answerer := service.NewAnswerer(app.Retriever, generator, service.AnswerConfig{
		TopK:          cfg.QATopK,
		MinSimilarity: cfg.QAMinSimilarity,
		HistoryTurns:  cfg.HistoryTurns,
	})
	synthesizer := service.NewSectionSynthesizer(app.Retriever, generator, service.SectionConfig{
		TopK:          cfg.ReportTopK,
		MinSimilarity: cfg.ReportMinSimilarity,
		Concurrency:   cfg.WorkerConcurrency,
	})

	app.Documents = service.NewDocumentService(
		documentRepo, chunkRepo, files, extract.New(),
		service.NewChunker(service.ChunkConfig{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap}),
		index, locker, txRunner,
		service.DocumentServiceConfig{MaxUploadBytes: cfg.MaxUploadBytes, TempDir: cfg.TempDir},
	)
	app.Reports = service.NewReportService(reportRepo, documentRepo, files, synthesizer, locker, txRunner)
	app.Chat = service.NewChatService(conversationRepo, answerer, txRunner, service.ChatConfig{HistoryTurns: cfg.HistoryTurns})

	if cfg.HasDrive() {
		client, err := drive.NewClient(ctx, cfg.DriveCredentialsFile, cfg.DriveTokenFile)
		if err != nil {
			return nil, err
		}
		app.Drive = client
		app.Documents.WithDrive(client)
		app.log.Info("drive import enabled")
	}

	app.Processor = jobs.NewProcessingWorker(app.Jobs, map[domain.JobKind]jobs.JobHandler{
		domain.JobKindDocument: app.Documents,
		domain.JobKindReport:   app.Reports,
	}, jobs.WorkerConfig{
		MaxRetries:  cfg.JobMaxRetries,
		Concurrency: cfg.WorkerConcurrency,
	})
	app.Worker = jobs.NewWorker(app.Processor, cfg.WorkerPollInterval)
	app.Documents.WithNotifier(app.Worker)
	app.Reports.WithNotifier(app.Worker)

	return app, nil
}

func newFileStore(ctx context.Context, cfg *config.Config) (service.FileStore, error) {
	log := logger.New("app")
	if !cfg.HasS3() {
		store, err := storage.NewLocalStore(cfg.StorageDir)
		if err != nil {
			return nil, err
		}
		log.Info("using local file store", "dir", cfg.StorageDir)
		return store, nil
	}

	client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
	}
	log.Info("S3 bucket ready", "bucket", cfg.S3Bucket)
	return client, nil
}

func (a *App) newVectorStore(cfg *config.Config, pool *pgxpool.Pool) (service.VectorStore, error) {
	switch cfg.VectorBackend {
	case "qdrant":
		store, err := qdrant.NewStore(qdrant.Config{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			UseTLS:     cfg.QdrantUseTLS,
			Collection: cfg.IndexName,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case "memory":
		a.log.Warn("using in-memory vector index; passages are lost on restart")
		return memory.NewStore(cfg.IndexName), nil
	default:
		return repository.NewPassageStore(pool), nil
	}
}

func (a *App) newEmbedder(cfg *config.Config, models gemini.ModelsAPI) (service.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		return openai.NewEmbedder(openai.EmbedderConfig{
			APIKey:    cfg.OpenAIAPIKey,
			Model:     cfg.OpenAIEmbeddingModel,
			BatchSize: cfg.EmbeddingBatchSize,
		})
	case "gemini":
		return gemini.NewEmbedder(models, cfg.GeminiEmbeddingModel), nil
	default:
		e := hugot.NewEmbedder(hugot.Config{
			Model:     cfg.EmbeddingModel,
			ModelDir:  cfg.LocalModelDir,
			BatchSize: cfg.EmbeddingBatchSize,
		})
		a.closers = append(a.closers, e.Close)
		return e, nil
	}
}

func newGenerator(cfg *config.Config, models gemini.ModelsAPI) (service.Generator, error) {
	if cfg.GeneratorProvider == "openai" {
		return openai.NewGenerator(openai.GeneratorConfig{
			APIKey:          cfg.OpenAIAPIKey,
			Model:           cfg.OpenAIModel,
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxOutputTokens,
		})
	}
	return gemini.NewGenerator(models, gemini.GeneratorConfig{
		Model:           cfg.GeminiModel,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}), nil
}

func (a *App) newLocker(ctx context.Context, cfg *config.Config) (service.Locker, error) {
	if !cfg.HasRedis() {
		return service.NewKeyedMutex(), nil
	}
	client, err := lock.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	a.log.Info("using redis locks", "ttl", cfg.LockTTL)
	return lock.NewRedisLocker(client, cfg.LockTTL), nil
}

// Close releases backends in reverse order of acquisition.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("close failed", "error", err)
	}
}
