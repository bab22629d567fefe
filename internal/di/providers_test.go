package di

import (
	"testing"

	internalrepo "FinHybrid/internal/repository"
	"FinHybrid/internal/services/hybrid"
	"FinHybrid/internal/services/temporal"
	"FinHybrid/pkg/cache"
	"FinHybrid/pkg/config"
	applogger "FinHybrid/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	return cfg
}

func TestProvideCache(t *testing.T) {
	cfg := defaultConfig(t)

	cfg.Temporal.Cache = "none"
	c, err := ProvideCache(cfg)
	require.NoError(t, err)
	assert.Nil(t, c)

	cfg.Temporal.Cache = "memory"
	c, err = ProvideCache(cfg)
	require.NoError(t, err)
	require.IsType(t, &cache.MemoryCache{}, c)
	assert.NoError(t, c.Close())
}

func TestProvideTemporalAdapter(t *testing.T) {
	cfg := defaultConfig(t)
	l := applogger.Nop()

	assert.IsType(t, &temporal.LocalAdapter{}, ProvideTemporalAdapter(cfg, nil, l))

	mem := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mem.Close()
	assert.IsType(t, &temporal.CachedAdapter{}, ProvideTemporalAdapter(cfg, mem, l))

	cfg.Temporal.Mode = "http"
	cfg.Temporal.URL = "http://localhost:9"
	assert.IsType(t, &temporal.HTTPAdapter{}, ProvideTemporalAdapter(cfg, nil, l))
}

func TestProvideTemplates(t *testing.T) {
	cfg := defaultConfig(t)
	ts, err := ProvideTemplates(cfg)
	require.NoError(t, err)
	assert.Equal(t, hybrid.DefaultTemplates(), ts)

	cfg.PatternsFile = "../../config/patterns.yaml"
	ts, err = ProvideTemplates(cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, ts)

	cfg.PatternsFile = "does-not-exist.yaml"
	_, err = ProvideTemplates(cfg)
	assert.Error(t, err)
}

func TestDisabledInfrastructure(t *testing.T) {
	cfg := defaultConfig(t)
	l := applogger.Nop()

	ch, err := ProvideClickHouseClient(cfg)
	require.NoError(t, err)
	assert.Nil(t, ch)
	assert.Nil(t, ProvideFeatureStore(nil, l))

	p, err := ProvideKafkaProducer(cfg)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.IsType(t, &internalrepo.LogSignalPublisher{}, ProvideSignalPublisher(nil, cfg, l))

	consumer, err := ProvideKafkaConsumer(cfg, l)
	require.NoError(t, err)
	assert.Nil(t, consumer)
}

func TestProvideRateLimiter(t *testing.T) {
	cfg := defaultConfig(t)
	assert.NotNil(t, ProvideRateLimiter(cfg))
	cfg.Server.RateLimit = 0
	assert.Nil(t, ProvideRateLimiter(cfg))
}

func TestInitializeApp_Defaults(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Logging.Level = "error"
	app, err := InitializeApp(cfg)
	require.NoError(t, err)
	require.NotNil(t, app)

	routes := map[string]bool{}
	for _, r := range app.HTTP().Echo().Routes() {
		routes[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"GET /metrics",
		"POST /api/hybrid/predict",
		"POST /api/hybrid/train",
		"GET /api/hybrid/train/status",
		"GET /api/hybrid/history",
		"GET /api/hybrid/config",
		"GET /api/hybrid/patterns",
	} {
		assert.True(t, routes[want], want)
	}
}
