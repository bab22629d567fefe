package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	xhttp "FinHybrid/pkg/http"
	pkgkafka "FinHybrid/pkg/kafka"
	applogger "FinHybrid/pkg/logger"
)

// Shutdowner is a background job runner that can be cancelled and drained.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

type namedCloser struct {
	name string
	c    io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	l        *applogger.Logger
	http     *xhttp.Server
	consumer *pkgkafka.Consumer
	handlers []pkgkafka.MessageHandler
	jobs     Shutdowner
	closers  []namedCloser
}

type Option func(*App)

// WithConsumer runs c with the given handlers for the lifetime of the app.
func WithConsumer(c *pkgkafka.Consumer, handlers ...pkgkafka.MessageHandler) Option {
	return func(a *App) {
		a.consumer = c
		a.handlers = handlers
	}
}

// WithJobs cancels and drains j on shutdown, before resources are closed.
func WithJobs(j Shutdowner) Option {
	return func(a *App) { a.jobs = j }
}

// WithCloser closes c on shutdown. Closers run in reverse registration order.
func WithCloser(name string, c io.Closer) Option {
	return func(a *App) {
		if c != nil {
			a.closers = append(a.closers, namedCloser{name: name, c: c})
		}
	}
}

// New creates a new App instance with all dependencies.
func New(l *applogger.Logger, httpServer *xhttp.Server, opts ...Option) *App {
	if l == nil {
		l = applogger.Nop()
	}
	a := &App{l: l, http: httpServer}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// HTTP returns the HTTP server.
func (a *App) HTTP() *xhttp.Server { return a.http }

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the application and blocks until ctx is done, then shuts down.
func (a *App) RunContext(ctx context.Context) error {
	if err := a.start(); err != nil {
		a.shutdown()
		return err
	}
	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) start() error {
	if a.consumer != nil && len(a.handlers) > 0 {
		for _, h := range a.handlers {
			a.consumer.RegisterHandler(h)
		}
		if err := a.consumer.Start(); err != nil {
			a.l.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.l.Info("kafka consumer started", applogger.Strings("topics", a.consumer.Topics()))
	}

	if err := a.http.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	return nil
}

// shutdown stops intake first, then drains jobs, then releases resources.
func (a *App) shutdown() error {
	a.l.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), a.http.ShutdownTimeout())
	defer cancel()

	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	if err := a.http.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
		keep(err)
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
			keep(err)
		}
	}
	if a.jobs != nil {
		if err := a.jobs.Shutdown(ctx); err != nil {
			a.l.Warn("background jobs did not drain", applogger.Error(err))
			keep(err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		nc := a.closers[i]
		if err := nc.c.Close(); err != nil {
			a.l.Warn("close error", applogger.String("resource", nc.name), applogger.Error(err))
			keep(err)
		}
	}

	a.l.Info("shutdown complete")
	return firstErr
}
