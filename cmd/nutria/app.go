package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"github.com/PabloGalante/nutria-agent/internal/adapters/cache"
	"github.com/PabloGalante/nutria-agent/internal/adapters/llm"
	firestorestore "github.com/PabloGalante/nutria-agent/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/nutria-agent/internal/adapters/storage/memory"
	sqlitestore "github.com/PabloGalante/nutria-agent/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/nutria-agent/internal/app/actions"
	"github.com/PabloGalante/nutria-agent/internal/app/capture"
	"github.com/PabloGalante/nutria-agent/internal/app/conversation"
	"github.com/PabloGalante/nutria-agent/internal/app/orchestrator"
	"github.com/PabloGalante/nutria-agent/internal/app/persistence"
	"github.com/PabloGalante/nutria-agent/internal/app/session"
	"github.com/PabloGalante/nutria-agent/internal/app/typing"
	"github.com/PabloGalante/nutria-agent/internal/config"
	"github.com/PabloGalante/nutria-agent/internal/domain"
)

// model is what a language model backend provides to the app.
type model interface {
	domain.Generator
	domain.Transcriber
	domain.ImageDescriber
}

// healthBackend stores health records and answers context reads.
type healthBackend interface {
	domain.HealthStore
	domain.ContextProvider
}

// app is the wired object graph shared by serve and chat.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	svc    *conversation.Service

	// redis is set when invalidations go through Redis.
	redis *cache.Redis
	// memCache is set otherwise.
	memCache *cache.Memory

	closers []func() error
}

// buildApp wires stores, cache, model and the conversation service from cfg.
// onUpdate, when set, receives every session view.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, onUpdate func(session.View)) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	gen, err := newModel(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	health, convs, err := a.openStores(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	var (
		ctxProvider domain.ContextProvider
		invalidator domain.CacheInvalidator
	)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		r, err := cache.NewRedis(client, health)
		if err != nil {
			_ = client.Close()
			a.close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		a.closers = append(a.closers, client.Close)
		a.redis = r
		ctxProvider, invalidator = r, r
		logger.Info("cache: redis", "addr", cfg.RedisAddr)
	} else {
		m := cache.NewMemory(health)
		a.memCache = m
		ctxProvider, invalidator = m, m
		logger.Info("cache: in-memory")
	}

	a.svc = conversation.NewService(session.Deps{
		Turns:       orchestrator.New(gen, ctxProvider),
		Executor:    actions.NewExecutor(health),
		Invalidator: invalidator,
		Store:       convs,
		Transcriber: gen,
		Images:      capture.NewImageAnalyzer(gen),
		Presenter:   typing.NewPresenter(typing.ClockScheduler{}, typing.DefaultCadence().Scaled(cfg.TypingSpeed)),
		SaveOptions: persistence.Options{
			QuietPeriod: cfg.SaveQuietPeriod,
			MaxAttempts: cfg.SaveMaxAttempts,
			Backoff:     cfg.SaveRetryBackoff,
		},
		Location: cfg.Location(),
		OnUpdate: onUpdate,
	})
	return a, nil
}

func newModel(ctx context.Context, cfg *config.Config, logger *slog.Logger) (model, error) {
	if cfg.UseMockLLM {
		logger.Info("llm: mock")
		return llm.NewMockLLM(), nil
	}

	logger.Info("llm: vertex", "project", cfg.GCPProjectID, "location", cfg.GCPLocation, "model", cfg.ModelName)
	client, err := llm.NewVertexClient(ctx, llm.VertexConfig{
		Project:  cfg.GCPProjectID,
		Location: cfg.GCPLocation,
		Model:    cfg.ModelName,
	})
	if err != nil {
		return nil, fmt.Errorf("vertex client: %w", err)
	}
	return client, nil
}

// openStores picks the conversation and health backends. Health records
// live in sqlite unless everything is in memory; firestore only holds
// conversations.
func (a *app) openStores(ctx context.Context) (healthBackend, domain.ConversationStore, error) {
	switch a.cfg.StorageBackend {
	case config.StorageMemory:
		a.logger.Info("storage: in-memory")
		return memstore.NewHealthStore(), memstore.NewConversationStore(), nil

	case config.StorageFirestore:
		db, err := a.openSQLite()
		if err != nil {
			return nil, nil, err
		}
		fs, err := firestorestore.NewStore(ctx, a.cfg.GCPProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("firestore: %w", err)
		}
		a.closers = append(a.closers, fs.Close)
		a.logger.Info("storage: firestore conversations, sqlite health records",
			"project", a.cfg.GCPProjectID, "path", a.cfg.SQLitePath)
		return db, fs, nil

	default:
		db, err := a.openSQLite()
		if err != nil {
			return nil, nil, err
		}
		a.logger.Info("storage: sqlite", "path", a.cfg.SQLitePath)
		return db, db, nil
	}
}

func (a *app) openSQLite() (*sqlitestore.Store, error) {
	db, err := sqlitestore.Open(a.cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("sqlite %s: %w", a.cfg.SQLitePath, err)
	}
	a.closers = append(a.closers, db.Close)
	return db, nil
}

// shutdown flushes every live session, then closes the backends.
func (a *app) shutdown(ctx context.Context) {
	if a.svc != nil {
		if err := a.svc.Close(ctx); err != nil {
			a.logger.Error("closing sessions", "error", err)
		}
	}
	a.close()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close", "error", err)
		}
	}
	a.closers = nil
}
