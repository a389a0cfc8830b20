package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kalambet/kopi/internal/assistant"
	"github.com/kalambet/kopi/internal/config"
	"github.com/kalambet/kopi/internal/memory"
	"github.com/kalambet/kopi/internal/metrics"
	"github.com/kalambet/kopi/internal/ollama"
	"github.com/kalambet/kopi/internal/planner"
	"github.com/kalambet/kopi/internal/retrieval"
	"github.com/kalambet/kopi/internal/storage"
	"github.com/kalambet/kopi/internal/text2sql"
)

// app holds the long-lived components shared by serve, mcp and the local
// maintenance commands.
type app struct {
	cfg       config.Config
	store     *storage.Store
	sessions  memory.Store
	metrics   *metrics.Collector
	assistant *assistant.Assistant

	// nil when the embedding model is unavailable
	searcher *retrieval.Searcher
	indexer  *retrieval.Indexer

	closers []func() error
}

type appOptions struct {
	// progress receives model pull output; nil skips the readiness check
	// and leaves product search disabled.
	progress io.Writer
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return cfg, err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return cfg, nil
}

func newApp(ctx context.Context, cfg config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	areas := text2sql.DefaultAreas()
	if cfg.Outlets.AreasFile != "" {
		areas, err = text2sql.LoadAreas(cfg.Outlets.AreasFile)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("loading areas: %w", err)
		}
	}

	switch cfg.Session.Backend {
	case config.SessionRedis:
		rs, err := memory.OpenRedisStore(ctx, cfg.Session.RedisURL, cfg.Session.TTL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting to session store: %w", err)
		}
		a.sessions = rs
		a.closers = append(a.closers, rs.Close)
	default:
		a.sessions = memory.NewMemoryStore(cfg.Session.TTL)
	}

	if opts.progress != nil {
		a.enableProducts(ctx, opts.progress)
	}

	a.metrics = metrics.NewCollector("kopi")

	assistOpts := []assistant.Option{
		assistant.WithInteractionLog(store),
		assistant.WithMetrics(a.metrics),
		assistant.WithTopK(cfg.Retrieval.TopK),
	}
	if a.searcher != nil {
		assistOpts = append(assistOpts, assistant.WithProducts(a.searcher))
	}
	a.assistant = assistant.New(
		planner.New(areas),
		text2sql.NewTranslator(areas, text2sql.WithMaxRows(cfg.Outlets.MaxRows)),
		store,
		a.sessions,
		assistOpts...,
	)
	return a, nil
}

// enableProducts wires product search when Ollama serves the embedding
// model. Failure is not fatal: the rest of the assistant still works.
func (a *app) enableProducts(ctx context.Context, progress io.Writer) {
	client := ollama.New(a.cfg.Ollama.BaseURL)
	if err := ollama.EnsureReady(ctx, client, progress, a.cfg.Ollama.EmbedModel); err != nil {
		slog.Warn("product search disabled", "ollama", a.cfg.Ollama.BaseURL, "error", err)
		return
	}

	embedder := retrieval.NewEmbedder(client, a.cfg.Ollama.EmbedModel)
	vectors := retrieval.NewSQLiteStore(a.store.DB())
	a.searcher = retrieval.NewSearcher(embedder, vectors, a.store, float32(a.cfg.Retrieval.MinScore))
	a.indexer = retrieval.NewIndexer(embedder, vectors, a.store)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing: %v\n", err)
		}
	}
}
