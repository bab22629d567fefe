//go:build wireinject
// +build wireinject

package di

import (
	"FinHybrid/pkg/config"
	"FinHybrid/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideFeatureStore,
		ProvideSignalPublisher,

		// Model
		ProvideTemporalAdapter,
		ProvideTemplates,
		ProvideModel,

		// Use cases
		ProvidePredictUseCase,
		ProvideTrainUseCase,
		ProvideKafkaFeaturesHandler,

		// HTTP
		ProvideRateLimiter,
		ProvideHybridHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
