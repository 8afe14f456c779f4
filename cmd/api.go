package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"smtrack.dev/telemetry-hub/internal/api"
	"smtrack.dev/telemetry-hub/pkg/metrics"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the API server",
	Long: `Run the API server that:
- Accepts device telemetry reports and fault events over HTTP
- Fans reports out to the pipeline queues on RabbitMQ
- Serves role-scoped notification and device queries
- Caches hot reads in Redis and charts history from InfluxDB`,
	RunE: runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)

	// API-specific flags
	apiCmd.Flags().Int("http-port", 8080, "HTTP server port")
	apiCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	apiCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	apiCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	apiCmd.Flags().String("db-password", "", "PostgreSQL password")
	apiCmd.Flags().String("db-name", "smtrack", "PostgreSQL database name")
	apiCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	apiCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	apiCmd.Flags().String("redis-addr", "localhost:6379", "Redis address")
	apiCmd.Flags().String("redis-password", "", "Redis password")
	apiCmd.Flags().Int("redis-db", 0, "Redis database number")
	apiCmd.Flags().String("influx-url", "http://localhost:8086", "InfluxDB URL")
	apiCmd.Flags().String("influx-token", "", "InfluxDB token")
	apiCmd.Flags().String("influx-org", "smtrack", "InfluxDB organization")
	apiCmd.Flags().String("influx-bucket", "smtrack-logday", "InfluxDB bucket")

	// Bind flags to viper
	_ = viper.BindPFlag("api.http.port", apiCmd.Flags().Lookup("http-port"))
	_ = viper.BindPFlag("api.db.host", apiCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("api.db.port", apiCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("api.db.user", apiCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("api.db.password", apiCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("api.db.name", apiCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("api.db.sslmode", apiCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("api.rabbitmq.url", apiCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("api.redis.addr", apiCmd.Flags().Lookup("redis-addr"))
	_ = viper.BindPFlag("api.redis.password", apiCmd.Flags().Lookup("redis-password"))
	_ = viper.BindPFlag("api.redis.db", apiCmd.Flags().Lookup("redis-db"))
	_ = viper.BindPFlag("api.influx.url", apiCmd.Flags().Lookup("influx-url"))
	_ = viper.BindPFlag("api.influx.token", apiCmd.Flags().Lookup("influx-token"))
	_ = viper.BindPFlag("api.influx.org", apiCmd.Flags().Lookup("influx-org"))
	_ = viper.BindPFlag("api.influx.bucket", apiCmd.Flags().Lookup("influx-bucket"))
}

func runAPI(_ *cobra.Command, _ []string) error {
	logger := GetLogger("api")
	logger.Info("starting api service")

	// Create API configuration from viper
	config := &api.ServerConfig{
		Logger:        logger,
		HTTPPort:      viper.GetInt("api.http.port"),
		DBHost:        viper.GetString("api.db.host"),
		DBPort:        viper.GetInt("api.db.port"),
		DBUser:        viper.GetString("api.db.user"),
		DBPassword:    viper.GetString("api.db.password"),
		DBName:        viper.GetString("api.db.name"),
		DBSSLMode:     viper.GetString("api.db.sslmode"),
		RabbitMQURL:   viper.GetString("api.rabbitmq.url"),
		RedisAddr:     viper.GetString("api.redis.addr"),
		RedisPassword: viper.GetString("api.redis.password"),
		RedisDB:       viper.GetInt("api.redis.db"),
		InfluxURL:     viper.GetString("api.influx.url"),
		InfluxToken:   viper.GetString("api.influx.token"),
		InfluxOrg:     viper.GetString("api.influx.org"),
		InfluxBucket:  viper.GetString("api.influx.bucket"),
		APIMetrics:    metrics.NewAPIMetrics("smtrack"),
		CacheMetrics:  metrics.NewCacheMetrics("smtrack"),
		IngestMetrics: metrics.NewIngestMetrics("smtrack"),
		MQMetrics:     metrics.NewMQMetrics("smtrack"),
	}

	// Create and run server
	server, err := api.NewServer(config)
	if err != nil {
		logger.Error("failed to create api server", "error", err)
		return err
	}

	logger.Info("api server configuration",
		"http_port", config.HTTPPort,
		"db_host", config.DBHost,
		"db_port", config.DBPort,
		"db_name", config.DBName,
		"rabbitmq_url", config.RabbitMQURL,
		"redis_addr", config.RedisAddr,
		"influx_url", config.InfluxURL,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("api server error", "error", err)
		return err
	}

	logger.Info("api server stopped")
	return nil
}
