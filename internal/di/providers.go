package di

import (
	"context"
	"fmt"

	"FinHybrid/internal/domain/repository"
	"FinHybrid/internal/domain/service"
	"FinHybrid/internal/handler/api"
	internalrepo "FinHybrid/internal/repository"
	"FinHybrid/internal/service/ratelimit"
	"FinHybrid/internal/services/hybrid"
	"FinHybrid/internal/services/temporal"
	"FinHybrid/internal/usecase"
	"FinHybrid/pkg/cache"
	pkgch "FinHybrid/pkg/clickhouse"
	"FinHybrid/pkg/config"
	xhttp "FinHybrid/pkg/http"
	pkgkafka "FinHybrid/pkg/kafka"
	applogger "FinHybrid/pkg/logger"
	"FinHybrid/pkg/metrics"
	"FinHybrid/pkg/server"
)

// ProvideLogger creates the application logger from the logging section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCache creates the cache selected by temporal.cache. It returns nil for "none".
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	switch cfg.Temporal.Cache {
	case "none":
		return nil, nil
	case "memory":
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Temporal.CacheSize)), nil
	}

	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.PoolSize/2, cfg.Temporal.Timeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	if cfg.Temporal.Cache == "redis" {
		return rc, nil
	}
	return cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(cfg.Temporal.CacheSize),
		cache.WithLayeredMemoryTTL(cfg.Temporal.CacheTTL),
	), nil
}

// ProvideTemporalAdapter selects the local or remote sequence model and wraps it in the cache when one is configured.
func ProvideTemporalAdapter(cfg *config.Config, c cache.Service, l *applogger.Logger) service.TemporalAdapter {
	var adapter service.TemporalAdapter
	switch cfg.Temporal.Mode {
	case "http":
		adapter = temporal.NewHTTPAdapter(cfg.Temporal.URL, cfg.Temporal.Timeout,
			temporal.WithRetries(cfg.Temporal.Retries, cfg.Temporal.Backoff),
			temporal.WithHTTPLogger(l),
		)
	default:
		adapter = temporal.NewLocalAdapter(cfg.Model.LSTM.HiddenSize, cfg.Model.LSTM.Attention)
	}
	if c == nil {
		return adapter
	}
	return temporal.NewCachedAdapter(adapter, c, cfg.Temporal.CacheTTL, l)
}

// ProvideTemplates loads pattern templates from patterns_file, or the built-in set when unset.
func ProvideTemplates(cfg *config.Config) ([]hybrid.PatternTemplate, error) {
	if cfg.PatternsFile == "" {
		return hybrid.DefaultTemplates(), nil
	}
	t, err := hybrid.LoadTemplates(cfg.PatternsFile)
	if err != nil {
		return nil, fmt.Errorf("pattern templates: %w", err)
	}
	return t, nil
}

// ProvideModel builds the hybrid model.
func ProvideModel(
	cfg *config.Config,
	adapter service.TemporalAdapter,
	templates []hybrid.PatternTemplate,
	m repository.Metrics,
	l *applogger.Logger,
) (*hybrid.Model, error) {
	model, err := hybrid.NewModel(cfg.Model, adapter,
		hybrid.WithLogger(l),
		hybrid.WithMetrics(m),
		hybrid.WithTemplates(templates),
	)
	if err != nil {
		return nil, fmt.Errorf("hybrid model: %w", err)
	}
	return model, nil
}

// ProvideClickHouseClient creates a ClickHouse client. It returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if !cfg.ClickHouse.InitSchema {
		return client, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ClickHouse.ReadTimeout)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.Schema()); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideFeatureStore creates the ClickHouse feature store, or nil without a client.
func ProvideFeatureStore(ch *pkgch.Client, l *applogger.Logger) repository.FeatureStore {
	if ch == nil {
		return nil
	}
	store := internalrepo.NewCHFeatureStore(ch)
	store.SetLogger(l)
	return store
}

// ProvideKafkaProducer creates a Kafka producer. It returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSignalPublisher publishes to Kafka when a producer exists and logs signals otherwise.
func ProvideSignalPublisher(p *pkgkafka.Producer, cfg *config.Config, l *applogger.Logger) repository.SignalPublisher {
	if p == nil {
		return internalrepo.NewLogSignalPublisher(l)
	}
	return internalrepo.NewKafkaSignalPublisher(p, cfg.Kafka.SignalTopic, l)
}

// ProvideKafkaConsumer creates a Kafka consumer. It returns nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvidePredictUseCase creates the prediction use case.
func ProvidePredictUseCase(
	model *hybrid.Model,
	store repository.FeatureStore,
	pub repository.SignalPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.PredictUseCase {
	return usecase.NewPredictUseCase(model, store, pub, m, l)
}

// ProvideTrainUseCase creates the training use case. The cache, when present, holds the training lock.
func ProvideTrainUseCase(
	model *hybrid.Model,
	c cache.Service,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.TrainUseCase {
	opts := []usecase.TrainOption{
		usecase.WithTrainTimeout(cfg.Training.Timeout),
		usecase.WithTrainLogger(l),
		usecase.WithTrainMetrics(m),
	}
	if c != nil {
		opts = append(opts, usecase.WithTrainLock(c, cfg.Training.LockTTL))
	}
	return usecase.NewTrainUseCase(model, opts...)
}

// ProvideKafkaFeaturesHandler handles the features topic.
func ProvideKafkaFeaturesHandler(cfg *config.Config, predict *usecase.PredictUseCase, m repository.Metrics) *usecase.KafkaFeaturesHandler {
	return usecase.NewKafkaFeaturesHandler(cfg.Kafka.FeaturesTopic, predict, m)
}

// ProvideRateLimiter returns nil when server.rate_limit is 0.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if cfg.Server.RateLimit <= 0 {
		return nil
	}
	return ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateBurst)
}

// ProvideHybridHandler creates the REST handler.
func ProvideHybridHandler(
	l *applogger.Logger,
	predict *usecase.PredictUseCase,
	train *usecase.TrainUseCase,
	model *hybrid.Model,
	limiter *ratelimit.Limiter,
) *api.HybridEchoHandler {
	return api.NewHybridEchoHandler(l, predict, train, model, limiter)
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, h *api.HybridEchoHandler, l *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(h,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins...),
		xhttp.WithLogger(l),
	)
}

// ProvideApp creates the application server. Resources close in reverse order: publisher, cache, ClickHouse.
func ProvideApp(
	l *applogger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	fh *usecase.KafkaFeaturesHandler,
	train *usecase.TrainUseCase,
	pub repository.SignalPublisher,
	c cache.Service,
	ch *pkgch.Client,
) *server.App {
	opts := []server.Option{server.WithJobs(train)}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer, fh))
	}
	if ch != nil {
		opts = append(opts, server.WithCloser("clickhouse", ch))
	}
	if c != nil {
		opts = append(opts, server.WithCloser("cache", c))
	}
	opts = append(opts, server.WithCloser("signal publisher", pub))
	return server.New(l, srv, opts...)
}
