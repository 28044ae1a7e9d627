package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/urban-mobility-etl/internal/adapter/csvsource"
	"github.com/couchcryptid/urban-mobility-etl/internal/adapter/geojson"
	kafkaadapter "github.com/couchcryptid/urban-mobility-etl/internal/adapter/kafka"
	"github.com/couchcryptid/urban-mobility-etl/internal/adapter/report"
	"github.com/couchcryptid/urban-mobility-etl/internal/adapter/shapefile"
	"github.com/couchcryptid/urban-mobility-etl/internal/adapter/sqlstore"
	"github.com/couchcryptid/urban-mobility-etl/internal/config"
	"github.com/couchcryptid/urban-mobility-etl/internal/domain"
	"github.com/couchcryptid/urban-mobility-etl/internal/observability"
	"github.com/couchcryptid/urban-mobility-etl/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	tripPath := cfg.TripDataPath()
	if err := pipeline.CheckTripFile(tripPath); err != nil {
		if errors.Is(err, pipeline.ErrTripFileMissing) {
			logger.Error("trip data file not found, nothing to do", "path", tripPath)
			return 0
		}
		logger.Error("failed to check trip data file", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlstore.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseSource(), cfg.BatchSize, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("database close error", "error", err)
		}
	}()

	shapePath := cfg.ZoneShapefilePath()
	crs, err := shapefile.ReadCRS(shapePath)
	if err != nil {
		logger.Error("failed to read zone projection", "error", err)
		return 1
	}
	if crs == "" {
		logger.Warn("zone projection unknown, geojson will carry no crs", "path", shapePath)
	}

	sinks := pipeline.Sinks{
		Tables:   store,
		Geometry: geojson.NewWriter(cfg.GeoJSONOutputPath(), geojson.LayerName(shapePath), logger).WithCRS(crs),
	}

	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		sinks.Publisher = writer
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	p := pipeline.New(
		pipeline.Sources{
			Trips:  csvsource.NewTripReader(tripPath, logger),
			Zones:  csvsource.NewZoneReader(cfg.ZoneLookupPath(), logger),
			Shapes: shapefile.NewReader(shapePath, logger),
		},
		sinks,
		logger,
		metrics,
	)

	summary, runErr := p.Run(ctx)
	if runErr == nil {
		metrics.LastSuccess.Set(float64(domain.Now().Unix()))
		logger.Info("generated outputs",
			"database_driver", cfg.DatabaseDriver,
			"geojson", cfg.GeoJSONOutputPath(),
		)
	}

	if cfg.ReportPath != "" {
		if err := report.Write(cfg.ReportPath, summary); err != nil {
			logger.Error("failed to write run report", "error", err)
		}
	}
	if cfg.MetricsTextfile != "" {
		if err := observability.WriteTextfile(cfg.MetricsTextfile, prometheus.DefaultGatherer); err != nil {
			logger.Error("failed to write metrics", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("pipeline failed", "error", runErr)
		return 1
	}
	return 0
}
