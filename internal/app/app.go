// Package app assembles the stores, the reaction bus and the notification
// pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"expensetracker/internal/bus"
	"expensetracker/internal/cache"
	"expensetracker/internal/config"
	"expensetracker/internal/httpclient"
	"expensetracker/internal/log"
	"expensetracker/internal/notify"
	"expensetracker/internal/session"
	"expensetracker/internal/store"
	"expensetracker/internal/window"
)

// App owns every store and the resources behind them.
type App struct {
	Client       *httpclient.Client
	Session      *session.Session
	Accounts     *store.AccountStore
	Categories   *store.CategoryStore
	Transactions *store.TransactionStore
	Window       *window.Window
	Reporter     *notify.Reporter
	// Notices is set when the memory backend is selected.
	Notices *notify.MemorySink

	logger  *log.Logger
	caches  *cache.Manager
	cleanup notify.CleanupFunc
}

type options struct {
	now       func() time.Time
	refresher session.Refresher
	factory   *notify.Factory
}

// Option customizes New.
type Option func(*options)

// WithClock sets the clock used for token expiry and the default month.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRefresher enables token refresh after a 401.
func WithRefresher(r session.Refresher) Option {
	return func(o *options) { o.refresher = r }
}

// WithSinkFactory replaces the notice sink factory.
func WithSinkFactory(f *notify.Factory) Option {
	return func(o *options) { o.factory = f }
}

// New wires an App from cfg. The caller must Close it.
func New(ctx context.Context, cfg *config.Config, logger *log.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = log.Discard()
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.factory == nil {
		o.factory = notify.NewFactory(logger)
	}

	sessOpts := []session.Option{session.WithClock(o.now)}
	if o.refresher != nil {
		sessOpts = append(sessOpts, session.WithRefresher(o.refresher))
	}
	sess := session.New(logger, sessOpts...)

	client, err := httpclient.New(cfg.APIBaseURL,
		httpclient.WithTimeout(cfg.HTTPTimeout),
		httpclient.WithTokenSource(sess),
		httpclient.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	sinkCfg, err := notify.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	sink, err := o.factory.CreateSink(ctx, sinkCfg)
	if err != nil {
		return nil, err
	}

	caches := cache.NewManager(logger)
	seen := cache.NewLRUCache[struct{}](cfg.NoticeDedupeSize, cfg.NoticeDedupeTTL).WithClock(o.now)
	caches.Register(seen)
	if cfg.CacheCleanupInterval > 0 {
		caches.StartCleanup(cfg.CacheCleanupInterval)
	}

	a := &App{
		Client:       client,
		Session:      sess,
		Accounts:     store.NewAccountStore(client, logger),
		Categories:   store.NewCategoryStore(client, logger),
		Transactions: store.NewTransactionStore(client, logger),
		Window:       window.New(logger, window.WithClock(o.now)),
		Reporter:     notify.NewReporter(sink.Sink, seen, logger),
		Notices:      sink.Memory,
		logger:       logger.WithComponent(log.ComponentApp),
		caches:       caches,
		cleanup:      sink.Cleanup,
	}

	_, err = bus.New(bus.Stores{
		Session:      a.Session,
		Accounts:     a.Accounts,
		Categories:   a.Categories,
		Transactions: a.Transactions,
		Window:       a.Window,
	}, a.Reporter, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.logger.InfoContext(ctx, "Application ready",
		"api", cfg.APIBaseURL,
		"notify_backend", sinkCfg.Type.String())
	return a, nil
}

// SignIn starts the session; the bus loads accounts, categories and the
// current month from there.
func (a *App) SignIn(ctx context.Context, token string) error {
	return a.Session.SignIn(ctx, token)
}

// SignOut ends the session and clears every store.
func (a *App) SignOut(ctx context.Context) {
	a.Session.SignOut(ctx)
}

// Dashboard summarizes the current window.
func (a *App) Dashboard() window.Summary {
	return a.Window.Summary()
}

// Close stops cache cleanup and releases the notice sink.
func (a *App) Close() error {
	a.caches.Stop()
	m := a.Client.Metrics()
	a.logger.Info("API client stats",
		"requests", m.TotalRequests,
		"failed", m.FailedRequests,
		"avg_response", m.AverageResponseTime.String())
	if a.cleanup == nil {
		return nil
	}
	return a.cleanup()
}
