package main

import (
	"flag"
	"os"

	"FinHybrid/internal/di"
	"FinHybrid/pkg/config"
	applogger "FinHybrid/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	boot, _ := applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stderr"})

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		boot.Error("config load failed", applogger.String("path", *configPath), applogger.Error(err))
		os.Exit(1)
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		boot.Error("app initialization failed", applogger.Error(err))
		os.Exit(1)
	}

	boot.Info("finhybrid starting",
		applogger.String("env", cfg.Environment),
		applogger.String("temporal_mode", cfg.Temporal.Mode),
		applogger.String("temporal_cache", cfg.Temporal.Cache),
		applogger.Bool("clickhouse", cfg.ClickHouse.Enabled),
		applogger.Bool("kafka", cfg.Kafka.Enabled),
		applogger.Int("port", cfg.Server.Port),
	)

	// blocks until SIGINT or SIGTERM
	if err := app.Run(); err != nil {
		boot.Error("app error", applogger.Error(err))
		os.Exit(1)
	}
}
