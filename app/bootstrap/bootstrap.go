package bootstrap

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/quilora/backend-go/internal/cache"
	"github.com/quilora/backend-go/internal/config"
	"github.com/quilora/backend-go/internal/di"
	"github.com/quilora/backend-go/internal/logger"
	"github.com/quilora/backend-go/internal/rag"
	"go.uber.org/zap"
)

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	cleanupTasks []func() error
}

// Init bootstraps configuration, logger, the DI container and shared
// infrastructure components required by the Beego application.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize structured logger.
	if err := logger.InitLogger(); err != nil {
		return nil, err
	}

	// Load configuration. Missing required settings are fatal: the
	// process must not serve traffic without credentials.
	if err := config.LoadConfig(); err != nil {
		return nil, err
	}
	if err := config.AppConfig.Validate(); err != nil {
		return nil, err
	}

	app := &App{}

	container := di.InitContainer()
	if err := di.RegisterProviders(container); err != nil {
		return nil, err
	}

	// Force construction of the document store now. Reaching the vector
	// database is a startup requirement, not a lazy first-request surprise.
	if err := di.Invoke(func(store rag.DocumentStore) {
		app.cleanupTasks = append(app.cleanupTasks, store.Close)
	}); err != nil {
		return nil, err
	}

	// The query cache is optional; register cleanup only when connected.
	if err := di.Invoke(func(queryCache *cache.QueryCache) {
		if queryCache != nil {
			app.cleanupTasks = append(app.cleanupTasks, queryCache.Close)
		}
	}); err != nil {
		return nil, err
	}

	logger.Info("application bootstrapped",
		zap.String("vector_store", config.AppConfig.VectorStore.Provider),
		zap.String("collection", config.AppConfig.VectorStore.Collection))
	return app, nil
}

// Shutdown flushes logs and closes resources gracefully.
func (a *App) Shutdown() {
	// Execute cleanup tasks in reverse order (best effort).
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			log.Printf("Cleanup error: %v\n", err)
		}
	}

	logger.Sync()
}
