// Package tsdb wraps the InfluxDB client used for historical charting
// queries. The time-series backend is an external collaborator: this package
// only issues Flux queries and flattens the result rows.
package tsdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Row is one flattened result record.
type Row map[string]interface{}

// Querier issues Flux queries against the time-series backend.
type Querier interface {
	Query(ctx context.Context, flux string) ([]Row, error)

	// Bucket returns the bucket historical data is written to, for use in
	// query construction.
	Bucket() string
}

// Influx is the InfluxDB-backed Querier.
type Influx struct {
	logger *slog.Logger
	client influxdb2.Client
	query  api.QueryAPI
	bucket string
}

// InfluxConfig holds the configuration for the Influx querier.
type InfluxConfig struct {
	Logger *slog.Logger
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewInflux creates an InfluxDB-backed querier.
func NewInflux(cfg *InfluxConfig) (*Influx, error) {
	if cfg == nil {
		return nil, errors.New("influx config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.URL == "" {
		return nil, errors.New("influx URL cannot be empty")
	}

	if cfg.Org == "" {
		return nil, errors.New("influx org cannot be empty")
	}

	if cfg.Bucket == "" {
		return nil, errors.New("influx bucket cannot be empty")
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	return &Influx{
		logger: cfg.Logger,
		client: client,
		query:  client.QueryAPI(cfg.Org),
		bucket: cfg.Bucket,
	}, nil
}

// Bucket returns the configured bucket name.
func (i *Influx) Bucket() string {
	return i.bucket
}

// Query runs a Flux query and flattens every record into a Row.
func (i *Influx) Query(ctx context.Context, flux string) ([]Row, error) {
	result, err := i.query.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("influx query failed: %w", err)
	}

	var rows []Row
	for result.Next() {
		rows = append(rows, Row(result.Record().Values()))
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("influx result iteration failed: %w", result.Err())
	}
	return rows, nil
}

// Close shuts down the underlying HTTP client.
func (i *Influx) Close() {
	i.client.Close()
}

// Ensure Influx implements Querier.
var _ Querier = (*Influx)(nil)
