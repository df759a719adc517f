package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finsight-ai/finsight/db"
	"github.com/finsight-ai/finsight/internal/chat"
	"github.com/finsight-ai/finsight/internal/config"
	"github.com/finsight-ai/finsight/internal/extract"
	"github.com/finsight-ai/finsight/internal/knowledge"
	"github.com/finsight-ai/finsight/internal/llm"
	"github.com/finsight-ai/finsight/internal/research"
	"github.com/finsight-ai/finsight/internal/search"
	"github.com/finsight-ai/finsight/internal/store"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup, call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embedder

	a.Store = store.New(pool, logger)
	a.Knowledge = knowledge.New(pool, a.Store, embedder, logger)

	a.LLM, err = llm.New(llm.Config{
		Genkit:      g,
		ModelName:   cfg.ModelName,
		Temperature: cfg.Temperature,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	a.SearchTool = search.New(a.Knowledge, logger)
	searchToolRef, err := search.Register(g, a.SearchTool)
	if err != nil {
		return nil, fmt.Errorf("registering search tool: %w", err)
	}

	a.Research, err = research.New(research.Config{
		Generator:           a.LLM,
		Retriever:           a.SearchTool,
		Store:               a.Store,
		MaxResearchLoops:    cfg.MaxResearchLoops,
		TopK:                cfg.TopK,
		SimilarityThreshold: cfg.SimilarityThreshold,
		Logger:              logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating research agent: %w", err)
	}

	a.Chat, err = chat.New(chat.Config{
		Generator:          a.LLM,
		Retriever:          a.SearchTool,
		Store:              a.Store,
		SearchTool:         searchToolRef,
		MaxToolRounds:      cfg.MaxToolRounds,
		HistoryWindow:      cfg.NormalizeHistoryWindow(cfg.HistoryWindow),
		MaxHistoryMessages: cfg.MaxHistoryMessages,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat agent: %w", err)
	}

	a.Extract, err = extract.New(extract.Config{
		Generator: a.LLM,
		Retriever: a.SearchTool,
		Store:     a.Store,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating extraction agent: %w", err)
	}

	_, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	return a, nil
}

// provideGenkit initializes Genkit with the Google AI plugin. The plugin
// reads GEMINI_API_KEY from the environment.
func provideGenkit(ctx context.Context) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with gemini provider")
	}
	return g, nil
}

// provideDBPool runs migrations and creates the PostgreSQL connection
// pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
