package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aineus/aineus/internal/config"
	"github.com/aineus/aineus/internal/infrastructure/llm"
	"github.com/aineus/aineus/internal/infrastructure/scheduler"
	"github.com/aineus/aineus/internal/infrastructure/source"
	"github.com/aineus/aineus/internal/infrastructure/storage"
	"github.com/aineus/aineus/internal/infrastructure/telegram"
	"github.com/aineus/aineus/internal/logging"
	"github.com/aineus/aineus/internal/ports"
	"github.com/aineus/aineus/internal/rest"
	"github.com/aineus/aineus/internal/usecase"
)

// Application wires configuration to adapters, use cases and the HTTP
// surface, and owns their lifecycle.
type Application struct {
	cfg     config.Config
	log     *slog.Logger
	pool    *pgxpool.Pool
	server  *rest.Server
	sweeper *usecase.Sweeper
}

// New builds a runnable application instance.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	store := storage.New(pool, logging.Component(baseLogger, "storage"))

	clients := llm.NewRegistry(cfg.LLM.Provider)
	clients.Register("openai", func(overrides map[string]any) (ports.LLMClient, error) {
		return llm.NewOpenAIClient(cfg.LLM.OpenAI, overrides)
	})
	clients.Register("ollama", func(overrides map[string]any) (ports.LLMClient, error) {
		return llm.NewOllamaClient(cfg.LLM.Ollama, overrides)
	})

	httpClient := &http.Client{Timeout: 30 * time.Second}
	sources := source.NewRegistry()
	sources.Register(source.NewNewsAPIClient(cfg.NewsAPI, httpClient))
	sources.Register(source.NewRSSSource(cfg.RSS.Feeds, logging.Component(baseLogger, "source.rss")))
	sources.Register(source.NewScrapeSource(cfg.Scrape.Pages, httpClient, logging.Component(baseLogger, "source.scrape")))

	transformer := usecase.NewTransformer(
		clients,
		cfg.Pipeline.Workers,
		cfg.Pipeline.LLMTimeout(),
		logging.Component(baseLogger, "transformer"),
	)

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID)
	}

	coordinator := usecase.NewCoordinator(usecase.CoordinatorDeps{
		Store:       store,
		Sources:     sources,
		Transformer: transformer,
		Notifier:    notifier,
		Logger:      logging.Component(baseLogger, "coordinator"),
	})

	// the default provider backs the /health probe; nil when unresolvable
	var healthLLM rest.HealthChecker
	if client, err := clients.Resolve("", nil); err == nil {
		healthLLM = client
	} else {
		baseLogger.Warn("default llm provider unavailable for health checks", slog.Any("err", err))
	}

	app := &Application{
		cfg:    cfg,
		log:    baseLogger,
		pool:   pool,
		server: rest.NewServer(cfg.Server.Addr, coordinator, store, healthLLM, logging.Component(baseLogger, "rest")),
	}
	if cfg.Sweep.Enabled {
		app.sweeper = usecase.NewSweeper(
			scheduler.NewTickerScheduler(cfg.Sweep.Interval()),
			coordinator,
			store,
			logging.Component(baseLogger, "sweeper"),
		)
	}
	return app, nil
}

// Run serves until SIGINT or SIGTERM, then shuts everything down.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	defer a.pool.Close()

	if a.sweeper != nil {
		if err := a.sweeper.Start(ctx); err != nil {
			return fmt.Errorf("start sweeper: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.sweeper.Stop(stopCtx); err != nil {
				a.log.Warn("stop sweeper", slog.Any("err", err))
			}
		}()
	}

	return a.server.Run(ctx)
}
