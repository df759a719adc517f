// Package app wires the application together: configuration, database
// pool, Genkit, the knowledge store, the retrieval tool and the three
// agents. Build an App once at startup and Close it on shutdown.
package app

import (
	"context"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finsight-ai/finsight/internal/chat"
	"github.com/finsight-ai/finsight/internal/config"
	"github.com/finsight-ai/finsight/internal/extract"
	"github.com/finsight-ai/finsight/internal/knowledge"
	"github.com/finsight-ai/finsight/internal/llm"
	"github.com/finsight-ai/finsight/internal/research"
	"github.com/finsight-ai/finsight/internal/search"
	"github.com/finsight-ai/finsight/internal/store"
)

// App is the core application container.
type App struct {
	Config *config.Config

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Store      *store.Store
	Knowledge  *knowledge.Store
	SearchTool *search.Tool
	LLM        *llm.Client

	Chat     *chat.Agent
	Research *research.Agent
	Extract  *extract.Agent

	cancel context.CancelFunc
}

// Close releases all resources held by the App.
func (a *App) Close() error {
	slog.Info("shutting down application")

	if a.cancel != nil {
		a.cancel()
	}
	if a.DBPool != nil {
		a.DBPool.Close()
		slog.Info("database pool closed")
	}
	return nil
}
