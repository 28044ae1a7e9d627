package pipeline

import "github.com/couchcryptid/urban-mobility-etl/internal/domain"

// Transform stages wrap the pure domain functions with counting, metrics and
// progress logging.

func (p *Pipeline) join(trips []domain.Trip, zones []domain.Zone, summary *domain.RunSummary) []domain.Trip {
	joined := domain.JoinZones(trips, zones)
	unmatched := domain.CountUnmatched(joined)

	summary.TripsJoined = len(joined)
	summary.UnmatchedPickups = unmatched
	p.metrics.UnmatchedTrips.Add(float64(unmatched))
	p.logger.Info("joined pickup zones", "trips", len(joined), "unmatched", unmatched)
	return joined
}

func (p *Pipeline) clean(trips []domain.Trip, summary *domain.RunSummary) []domain.Trip {
	kept, removed := domain.CleanTrips(trips)

	summary.CleanedRecords = removed
	p.metrics.RowsDropped.WithLabelValues("invalid_values").Add(float64(removed))
	p.logger.Info("cleaned suspicious records", "removed", removed, "remaining", len(kept))
	return kept
}

func (p *Pipeline) derive(trips []domain.Trip, summary *domain.RunSummary) []domain.Trip {
	kept, dropped := domain.DeriveFeatures(trips)

	summary.NonPositiveDurations = dropped
	p.metrics.RowsDropped.WithLabelValues("non_positive_duration").Add(float64(dropped))
	p.logger.Info("derived trip features", "dropped", dropped, "remaining", len(kept))
	return kept
}
