package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"smtrack.dev/telemetry-hub/internal/ingest"
	"smtrack.dev/telemetry-hub/pkg/metrics"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the pipeline worker",
	Long: `Run the pipeline worker that:
- Consumes device reports, device events and notifications from RabbitMQ
- Persists them idempotently to PostgreSQL
- Rejects poison messages to the dead-letter queues
- Deletes aged telemetry every midnight`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	// Worker-specific flags
	workerCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	workerCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	workerCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	workerCmd.Flags().String("db-password", "", "PostgreSQL password")
	workerCmd.Flags().String("db-name", "smtrack", "PostgreSQL database name")
	workerCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	workerCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	workerCmd.Flags().Int("metrics-port", 9091, "Metrics server port (0 disables)")

	// Bind flags to viper
	_ = viper.BindPFlag("worker.db.host", workerCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("worker.db.port", workerCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("worker.db.user", workerCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("worker.db.password", workerCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("worker.db.name", workerCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("worker.db.sslmode", workerCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("worker.rabbitmq.url", workerCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("worker.metrics.port", workerCmd.Flags().Lookup("metrics-port"))
}

func runWorker(_ *cobra.Command, _ []string) error {
	logger := GetLogger("worker")
	logger.Info("starting worker service")

	// Create worker configuration from viper
	config := &ingest.WorkerConfig{
		Logger:        logger,
		DBHost:        viper.GetString("worker.db.host"),
		DBPort:        viper.GetInt("worker.db.port"),
		DBUser:        viper.GetString("worker.db.user"),
		DBPassword:    viper.GetString("worker.db.password"),
		DBName:        viper.GetString("worker.db.name"),
		DBSSLMode:     viper.GetString("worker.db.sslmode"),
		RabbitMQURL:   viper.GetString("worker.rabbitmq.url"),
		MetricsPort:   viper.GetInt("worker.metrics.port"),
		IngestMetrics: metrics.NewIngestMetrics("smtrack"),
		MQMetrics:     metrics.NewMQMetrics("smtrack"),
	}

	// Create and run worker
	worker, err := ingest.NewWorker(config)
	if err != nil {
		logger.Error("failed to create worker", "error", err)
		return err
	}

	logger.Info("worker configuration",
		"db_host", config.DBHost,
		"db_port", config.DBPort,
		"db_name", config.DBName,
		"rabbitmq_url", config.RabbitMQURL,
		"metrics_port", config.MetricsPort,
	)

	if err := worker.Run(context.Background()); err != nil {
		logger.Error("worker error", "error", err)
		return err
	}

	logger.Info("worker stopped")
	return nil
}
