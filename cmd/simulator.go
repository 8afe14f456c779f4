package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"smtrack.dev/telemetry-hub/internal/simulator"
	"smtrack.dev/telemetry-hub/pkg/metrics"
)

var simulatorCmd = &cobra.Command{
	Use:   "simulator",
	Short: "Run the telemetry simulator",
	Long: `Run the telemetry simulator that:
- Registers a fleet of synthetic devices
- Publishes realistic refrigerator readings to the pipeline queues
- Raises fault events for out-of-range readings`,
	RunE: runSimulator,
}

func init() {
	rootCmd.AddCommand(simulatorCmd)

	// Simulator-specific flags
	simulatorCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	simulatorCmd.Flags().Int("device-count", 5, "Number of simulated devices")
	simulatorCmd.Flags().Duration("interval", 5*time.Second, "Interval between readings per device")

	// Bind flags to viper
	_ = viper.BindPFlag("simulator.rabbitmq.url", simulatorCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("simulator.device_count", simulatorCmd.Flags().Lookup("device-count"))
	_ = viper.BindPFlag("simulator.interval", simulatorCmd.Flags().Lookup("interval"))
}

func runSimulator(_ *cobra.Command, _ []string) error {
	logger := GetLogger("simulator")
	logger.Info("starting simulator service")

	// Create simulator configuration from viper
	config := &simulator.ServerConfig{
		Logger:        logger,
		RabbitMQURL:   viper.GetString("simulator.rabbitmq.url"),
		DeviceCount:   viper.GetInt("simulator.device_count"),
		Interval:      viper.GetDuration("simulator.interval"),
		IngestMetrics: metrics.NewIngestMetrics("smtrack"),
		MQMetrics:     metrics.NewMQMetrics("smtrack"),
	}

	// Create and run server
	server, err := simulator.NewServer(config)
	if err != nil {
		logger.Error("failed to create simulator server", "error", err)
		return err
	}

	logger.Info("simulator configuration",
		"rabbitmq_url", config.RabbitMQURL,
		"device_count", config.DeviceCount,
		"interval", config.Interval,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("simulator error", "error", err)
		return err
	}

	logger.Info("simulator stopped")
	return nil
}
