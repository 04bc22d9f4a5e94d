package bootstrap

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aihub/rag-go/internal/config"
	"github.com/aihub/rag-go/internal/database"
	"github.com/aihub/rag-go/internal/di"
	"github.com/aihub/rag-go/internal/logger"
	"github.com/aihub/rag-go/internal/rag"
	"github.com/aihub/rag-go/internal/services"
	"github.com/aihub/rag-go/internal/storage"
)

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	cleanupTasks []func() error
	ragService   *services.RAGService
}

// GetRAGService returns the wired RAG service
func (a *App) GetRAGService() *services.RAGService {
	return a.ragService
}

// Global app instance for controllers to access
var globalApp *App

// GetApp returns the global app instance
func GetApp() *App {
	return globalApp
}

// SetGlobalApp sets the global app instance
func SetGlobalApp(app *App) {
	globalApp = app
}

// Init bootstraps configuration, logger, infrastructure and the dig container,
// then resolves the RAG service graph once at startup.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize structured logger.
	if err := logger.InitLogger(); err != nil {
		return nil, err
	}

	// Load dynamic configuration.
	if err := config.LoadConfig(); err != nil {
		return nil, err
	}
	cfg := config.AppConfig

	app := &App{}

	// Initialize database (optional, required by the gorm docstore).
	var db *gorm.DB
	if cfg.Database.Enabled || cfg.RAG.DocStore.Provider == "database" {
		cfg.Database.Enabled = true
		var err error
		db, err = database.InitDB(cfg.Database)
		if err != nil {
			if cfg.RAG.DocStore.Provider == "database" {
				return nil, err
			}
			logger.Warn("Failed to initialize database", zap.Error(err))
		} else {
			app.cleanupTasks = append(app.cleanupTasks, func() error {
				return database.CloseDB(db)
			})
		}
	}

	// Initialize Redis (optional). Failure shouldn't block the app.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		var err error
		redisClient, err = database.InitRedis(cfg.Redis)
		if err != nil {
			logger.Warn("Failed to initialize Redis", zap.Error(err))
			redisClient = nil
		} else {
			app.cleanupTasks = append(app.cleanupTasks, func() error {
				return redisClient.Close()
			})
		}
	}

	// Wire the service graph through the dig container.
	di.InitContainer()

	providers := []interface{}{
		func() *config.Config { return cfg },
		func(c *config.Config) (storage.ObjectStorage, error) {
			return storage.NewObjectStorage(c.RAG.Storage)
		},
		func(c *config.Config) *rag.FileParserManager { return rag.NewFileParserManager() },
		func(c *config.Config) *rag.Chunker {
			ch := c.RAG.Chunking
			return rag.NewChunker(ch.ParentSize, ch.ParentOverlap, ch.ChildSize, ch.ChildOverlap)
		},
		func(c *config.Config) rag.Embedder {
			emb := c.RAG.Embedding
			return rag.NewOpenAIEmbedder(emb.APIKey, emb.BaseURL, emb.Model, emb.TimeoutSeconds)
		},
		func(c *config.Config) rag.Generator {
			gen := c.RAG.Generation
			return rag.NewOpenAIGenerator(rag.GeneratorOptions{
				APIKey:         gen.APIKey,
				BaseURL:        gen.BaseURL,
				Model:          gen.Model,
				MaxTokens:      gen.MaxTokens,
				Temperature:    gen.Temperature,
				TimeoutSeconds: gen.TimeoutSeconds,
			})
		},
		func(c *config.Config, store storage.ObjectStorage) (rag.DocumentStore, error) {
			return buildDocumentStore(c, store, db, redisClient)
		},
		func(c *config.Config, store storage.ObjectStorage, emb rag.Embedder) (rag.VectorIndex, error) {
			return buildVectorIndex(c, store, emb)
		},
		services.NewRAGService,
	}
	for _, provider := range providers {
		if err := di.Provide(provider); err != nil {
			return nil, err
		}
	}

	if err := di.Invoke(func(svc *services.RAGService) {
		app.ragService = svc
	}); err != nil {
		return nil, err
	}

	// Load persisted snapshots (missing snapshots mean first boot).
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.ragService.LoadSnapshots(ctx); err != nil {
		return nil, err
	}

	return app, nil
}

// buildDocumentStore 按配置选择文档库实现，Redis可用时套一层父块缓存
func buildDocumentStore(cfg *config.Config, store storage.ObjectStorage, db *gorm.DB, redisClient *redis.Client) (rag.DocumentStore, error) {
	var inner rag.DocumentStore
	switch cfg.RAG.DocStore.Provider {
	case "database":
		dbStore, err := rag.NewDatabaseDocumentStore(db)
		if err != nil {
			return nil, err
		}
		inner = dbStore
	default:
		inner = rag.NewMemoryDocumentStore(store, cfg.RAG.DocStore.SnapshotKey)
	}
	if redisClient != nil {
		return services.NewCachedDocumentStore(inner, redisClient, cfg.Redis.TTL), nil
	}
	return inner, nil
}

// buildVectorIndex 按配置选择向量索引实现
func buildVectorIndex(cfg *config.Config, store storage.ObjectStorage, embedder rag.Embedder) (rag.VectorIndex, error) {
	vi := cfg.RAG.VectorIndex
	switch vi.Provider {
	case "milvus":
		vectorSize := vi.Milvus.VectorSize
		if vectorSize == 0 {
			vectorSize = embedder.Dimensions()
		}
		return rag.NewMilvusVectorIndex(rag.MilvusOptions{
			Address:    vi.Milvus.Address,
			Username:   vi.Milvus.Username,
			Password:   vi.Milvus.Password,
			Collection: vi.Milvus.Collection,
			Database:   vi.Milvus.Database,
			UseTLS:     vi.Milvus.TLS,
			VectorSize: vectorSize,
			Distance:   vi.Distance,
		})
	default:
		return rag.NewMemoryVectorIndex(vi.Distance, store, vi.SnapshotKey), nil
	}
}

// Shutdown flushes/logs and closes resources gracefully.
func (a *App) Shutdown() {
	// Execute cleanup tasks in reverse order (best effort).
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			log.Printf("Cleanup error: %v\n", err)
		}
	}

	// Flush logger buffers.
	logger.Sync()
}
