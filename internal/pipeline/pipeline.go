package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/urban-mobility-etl/internal/domain"
	"github.com/couchcryptid/urban-mobility-etl/internal/observability"
)

// ErrTripFileMissing reports that the primary trip input does not exist.
var ErrTripFileMissing = errors.New("trip data file not found")

// TripSource reads the raw trip records.
type TripSource interface {
	ReadTrips(ctx context.Context) ([]domain.Trip, error)
}

// ZoneSource reads the taxi zone lookup table.
type ZoneSource interface {
	ReadZones(ctx context.Context) ([]domain.Zone, error)
}

// ShapeSource reads the taxi zone polygons.
type ShapeSource interface {
	ReadZoneShapes(ctx context.Context) ([]domain.ZoneFeature, error)
}

// TableWriter replaces the relational trips and zones tables.
type TableWriter interface {
	ReplaceTrips(ctx context.Context, trips []domain.Trip) (int, error)
	ReplaceZones(ctx context.Context, zones []domain.Zone) (int, error)
}

// GeometryWriter exports zone polygons.
type GeometryWriter interface {
	WriteZones(ctx context.Context, features []domain.ZoneFeature) error
}

// TripPublisher forwards enriched trips to a downstream consumer.
type TripPublisher interface {
	PublishTrips(ctx context.Context, trips []domain.Trip) (int, error)
}

// Sources groups the pipeline inputs.
type Sources struct {
	Trips  TripSource
	Zones  ZoneSource
	Shapes ShapeSource
}

// Sinks groups the pipeline outputs. Publisher is optional.
type Sinks struct {
	Tables    TableWriter
	Geometry  GeometryWriter
	Publisher TripPublisher
}

// Pipeline runs Load, Join, Clean, Derive and Persist once over static inputs.
type Pipeline struct {
	sources Sources
	sinks   Sinks
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Pipeline with the given inputs, outputs and observability.
func New(src Sources, dst Sinks, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		sources: src,
		sinks:   dst,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckTripFile returns ErrTripFileMissing when path does not exist. It runs
// before anything else so a missing input leaves previous outputs untouched.
func CheckTripFile(path string) error {
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrTripFileMissing, path)
	}
	if err != nil {
		return fmt.Errorf("stat trip data: %w", err)
	}
	return nil
}

// loaded holds the outputs of the load stage.
type loaded struct {
	trips  []domain.Trip
	zones  []domain.Zone
	shapes []domain.ZoneFeature
}

// Run executes every stage in order. Each stage completes over the full
// dataset before the next begins; the first error aborts the run.
func (p *Pipeline) Run(ctx context.Context) (domain.RunSummary, error) {
	summary := domain.RunSummary{
		StartedAt:      domain.Now(),
		StageDurations: make(map[string]time.Duration),
	}
	p.logger.Info("pipeline started")
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	var in loaded
	var trips []domain.Trip

	stages := []struct {
		name string
		run  func() error
	}{
		{domain.StageLoad, func() (err error) {
			in, err = p.load(ctx, &summary)
			return err
		}},
		{domain.StageJoin, func() error {
			trips = p.join(in.trips, in.zones, &summary)
			return nil
		}},
		{domain.StageClean, func() error {
			trips = p.clean(trips, &summary)
			return nil
		}},
		{domain.StageDerive, func() error {
			trips = p.derive(trips, &summary)
			return nil
		}},
		{domain.StagePersist, func() error {
			return p.persist(ctx, trips, in, &summary)
		}},
	}
	for _, s := range stages {
		if err := p.stage(ctx, s.name, &summary, s.run); err != nil {
			return summary, err
		}
	}

	summary.FinishedAt = domain.Now()
	p.logger.Info("pipeline finished",
		"trips_persisted", summary.TripsPersisted,
		"zones_persisted", summary.ZonesPersisted,
		"features_exported", summary.FeaturesExported,
		"elapsed", summary.FinishedAt.Sub(summary.StartedAt),
	)
	return summary, nil
}

// stage times fn on the domain clock, records the duration and wraps any
// error with the stage name.
func (p *Pipeline) stage(ctx context.Context, name string, summary *domain.RunSummary, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	start := domain.Now()
	err := fn()
	elapsed := domain.Since(start)

	summary.StageDurations[name] = elapsed
	p.metrics.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	if err != nil {
		p.logger.Error("stage failed", "stage", name, "error", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	p.logger.Debug("stage complete", "stage", name, "elapsed", elapsed)
	return nil
}

func (p *Pipeline) load(ctx context.Context, summary *domain.RunSummary) (loaded, error) {
	var in loaded
	var err error

	p.logger.Info("loading trip data")
	if in.trips, err = p.sources.Trips.ReadTrips(ctx); err != nil {
		return in, err
	}
	if in.zones, err = p.sources.Zones.ReadZones(ctx); err != nil {
		return in, err
	}
	if in.shapes, err = p.sources.Shapes.ReadZoneShapes(ctx); err != nil {
		return in, err
	}

	summary.TripsLoaded = len(in.trips)
	summary.ZonesLoaded = len(in.zones)
	summary.ZoneShapesLoaded = len(in.shapes)
	p.metrics.RowsLoaded.WithLabelValues("trips").Add(float64(len(in.trips)))
	p.metrics.RowsLoaded.WithLabelValues("zones").Add(float64(len(in.zones)))
	p.metrics.RowsLoaded.WithLabelValues("zone_shapes").Add(float64(len(in.shapes)))
	p.logger.Info("inputs loaded",
		"trips", len(in.trips),
		"zones", len(in.zones),
		"zone_shapes", len(in.shapes),
	)
	return in, nil
}

func (p *Pipeline) persist(ctx context.Context, trips []domain.Trip, in loaded, summary *domain.RunSummary) error {
	p.logger.Info("saving to database")
	n, err := p.sinks.Tables.ReplaceTrips(ctx, trips)
	if err != nil {
		return fmt.Errorf("persist trips: %w", err)
	}
	summary.TripsPersisted = n
	p.metrics.RowsPersisted.WithLabelValues("trips").Add(float64(n))

	n, err = p.sinks.Tables.ReplaceZones(ctx, in.zones)
	if err != nil {
		return fmt.Errorf("persist zones: %w", err)
	}
	summary.ZonesPersisted = n
	p.metrics.RowsPersisted.WithLabelValues("zones").Add(float64(n))

	if err := p.sinks.Geometry.WriteZones(ctx, in.shapes); err != nil {
		return fmt.Errorf("export zone geometry: %w", err)
	}
	summary.FeaturesExported = len(in.shapes)

	if p.sinks.Publisher != nil {
		n, err := p.sinks.Publisher.PublishTrips(ctx, trips)
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		summary.TripsPublished = n
	}
	return nil
}
