package domain

import "time"

// Pipeline stage names, used as log attributes, metric labels and report keys.
const (
	StageLoad    = "load"
	StageJoin    = "join"
	StageClean   = "clean"
	StageDerive  = "derive"
	StagePersist = "persist"
)

// RunSummary records what one pipeline run read, dropped and wrote.
type RunSummary struct {
	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at"`

	TripsLoaded      int `yaml:"trips_loaded"`
	ZonesLoaded      int `yaml:"zones_loaded"`
	ZoneShapesLoaded int `yaml:"zone_shapes_loaded"`

	TripsJoined      int `yaml:"trips_joined"`
	UnmatchedPickups int `yaml:"unmatched_pickups"`

	// CleanedRecords counts rows removed by the distance/fare/passenger filter.
	CleanedRecords int `yaml:"cleaned_records"`
	// NonPositiveDurations counts rows removed before speed is derived.
	NonPositiveDurations int `yaml:"non_positive_durations"`

	TripsPersisted   int `yaml:"trips_persisted"`
	ZonesPersisted   int `yaml:"zones_persisted"`
	FeaturesExported int `yaml:"features_exported"`
	TripsPublished   int `yaml:"trips_published"`

	StageDurations map[string]time.Duration `yaml:"stage_durations"`
}
