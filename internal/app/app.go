package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"newsdigest/internal/config"
	"newsdigest/internal/infrastructure/feed"
	"newsdigest/internal/infrastructure/httpapi"
	"newsdigest/internal/infrastructure/scheduler"
	"newsdigest/internal/infrastructure/storage"
	"newsdigest/internal/infrastructure/twitter"
	"newsdigest/internal/logging"
	"newsdigest/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg        config.Config
	logger     *slog.Logger
	db         *sql.DB
	server     *http.Server
	cron       *scheduler.CronScheduler
	collector  *usecase.Collector
	dispatcher *usecase.Dispatcher
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := storage.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sources := storage.NewSourceStore(db)
	articles := storage.NewArticleStore(db)
	posts := storage.NewPostStore(db)

	fetcher := feed.NewFetcher(nil, baseLogger.With("component", "fetcher"))

	composer := usecase.NewComposer(posts, articles, baseLogger.With("component", "composer"))
	collector := usecase.NewCollector(usecase.CollectorDeps{
		Sources:  sources,
		Articles: articles,
		Fetcher:  fetcher,
		Composer: composer,
		Logger:   baseLogger.With("component", "collector"),
	})

	signer := twitter.NewSigner(twitter.Credentials{
		ConsumerKey:       cfg.Twitter.ConsumerKey,
		ConsumerSecret:    cfg.Twitter.ConsumerSecret,
		AccessToken:       cfg.Twitter.AccessToken,
		AccessTokenSecret: cfg.Twitter.AccessTokenSecret,
	})
	publisher := twitter.NewClient(cfg.Twitter.APIURL, signer, nil)

	dispatcher := usecase.NewDispatcher(usecase.DispatcherDeps{
		Posts:     posts,
		Publisher: publisher,
		Logger:    baseLogger.With("component", "dispatcher"),
	})

	api := httpapi.New(collector, dispatcher, cfg.Twitter.Validate, baseLogger.With("component", "httpapi"))

	return &Application{
		cfg:    cfg,
		logger: baseLogger,
		db:     db,
		server: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		cron:       scheduler.New(cfg.Scheduler.Location(), baseLogger.With("component", "scheduler")),
		collector:  collector,
		dispatcher: dispatcher,
	}, nil
}

// Run starts the optional cron triggers and the HTTP listener, then blocks
// until the context is cancelled or the listener fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.registerJobs(); err != nil {
		return err
	}
	a.cron.Start()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.cfg.Server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		a.shutdown()
		return fmt.Errorf("http server: %w", err)
	}

	return a.shutdown()
}

func (a *Application) registerJobs() error {
	if spec := a.cfg.Scheduler.CollectCron; spec != "" {
		err := a.cron.Add("collect", spec, func(ctx context.Context) error {
			_, err := a.collector.Collect(ctx)
			return err
		})
		if err != nil {
			return err
		}
	}

	if spec := a.cfg.Scheduler.DispatchCron; spec != "" {
		err := a.cron.Add("dispatch", spec, func(ctx context.Context) error {
			if err := a.cfg.Twitter.Validate(); err != nil {
				return err
			}
			if _, err := a.dispatcher.RetryRecentFailures(ctx); err != nil {
				return err
			}
			_, err := a.dispatcher.ProcessPending(ctx)
			return err
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (a *Application) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var errs []error
	if err := a.cron.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop http server: %w", err))
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}
