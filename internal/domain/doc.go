// Package domain models NYC Taxi & Limousine Commission (TLC) yellow taxi trip
// records and the taxi zone reference data they are joined against.
//
// # Data Source
//
// Trip records come from the TLC monthly trip record CSVs
// (yellow_tripdata_YYYY-MM.csv). Zone reference data comes from the TLC taxi
// zone lookup CSV (taxi_zone_lookup.csv) and the taxi zone shapefile
// (taxi_zones.shp with its .dbf/.shx/.prj sidecars).
//
// # TLC Data Conventions
//
// Timestamps:
//
//	"2019-01-01 00:46:40", local New York time without an offset. They are
//	parsed as UTC wall-clock values so that durations are exact and the
//	stored text round-trips unchanged.
//
// Location identifiers:
//
//	PULocationID and DOLocationID reference LocationID in the zone lookup.
//	IDs 264 and 265 are the "Unknown" zones and have no polygon.
//
// Missing measures:
//
//	Empty numeric cells are read as NaN. NaN never satisfies a "> 0" filter
//	and is persisted as NULL. congestion_surcharge did not exist before
//	2019 and may be absent from the header entirely.
//
// # Stages
//
// The pipeline applies pure functions from this package in order:
// [JoinZones] (left join on PULocationID), [CleanTrips] (positive distance,
// fare and passenger count) and [DeriveFeatures] (duration, speed and tip
// percentage, dropping non-positive durations first).
package domain
