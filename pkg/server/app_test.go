package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	xhttp "FinHybrid/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

type jobsFunc func(ctx context.Context) error

func (f jobsFunc) Shutdown(ctx context.Context) error { return f(ctx) }

func TestApp_ShutdownOrder(t *testing.T) {
	rec := &recorder{}
	srv := xhttp.NewServer(nil, xhttp.WithPort(0), xhttp.WithMetricsPath(""))
	app := New(nil, srv,
		WithJobs(jobsFunc(func(context.Context) error { rec.add("jobs"); return nil })),
		WithCloser("first", closerFunc(func() error { rec.add("first"); return nil })),
		WithCloser("second", closerFunc(func() error { rec.add("second"); return nil })),
		WithCloser("skipped", nil),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.Equal(t, []string{"jobs", "second", "first"}, rec.calls)
}

func TestApp_ShutdownReportsFirstError(t *testing.T) {
	srv := xhttp.NewServer(nil, xhttp.WithPort(0), xhttp.WithMetricsPath(""))
	boom := errors.New("flush failed")
	closed := false
	app := New(nil, srv,
		WithCloser("ok", closerFunc(func() error { closed = true; return nil })),
		WithCloser("publisher", closerFunc(func() error { return boom })),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := app.RunContext(ctx)
	assert.ErrorIs(t, err, boom)
	assert.True(t, closed, "later closers still run after an error")
}
