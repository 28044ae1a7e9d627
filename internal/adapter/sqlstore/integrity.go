package sqlstore

import (
	"context"
	"fmt"
)

// derivedTolerance bounds float drift between stored features and the same
// quantity recomputed in SQL.
const derivedTolerance = 1e-6

// Violation reports how many persisted trips break one integrity rule.
type Violation struct {
	Rule string
	Rows int
}

type integrityRule struct {
	name string
	// where selects the offending rows.
	where string
}

func (s *Store) integrityRules() []integrityRule {
	dur := s.dialect.durationMinutes(quote("tpep_pickup_datetime"), quote("tpep_dropoff_datetime"))
	return []integrityRule{
		{"trip_distance positive", `"trip_distance" IS NULL OR "trip_distance" <= 0`},
		{"fare_amount positive", `"fare_amount" IS NULL OR "fare_amount" <= 0`},
		{"passenger_count positive", `"passenger_count" IS NULL OR "passenger_count" <= 0`},
		{"duration_mins positive", `"duration_mins" IS NULL OR "duration_mins" <= 0`},
		{"duration_mins matches timestamps", fmt.Sprintf(`ABS("duration_mins" - %s) > %g`, dur, derivedTolerance)},
		{"avg_speed_mph matches distance", fmt.Sprintf(`ABS("avg_speed_mph" - "trip_distance" / ("duration_mins" / 60.0)) > %g`, derivedTolerance)},
		{"tip_percentage matches fare", fmt.Sprintf(`ABS("tip_percentage" - "tip_amount" / "fare_amount" * 100.0) > %g`, derivedTolerance)},
		{"pickup zone joined", `"LocationID" IS NOT NULL AND "LocationID" <> "PULocationID"`},
	}
}

// CheckIntegrity re-verifies the cleaning and derivation guarantees against
// the persisted trips table. An empty result means every rule holds.
func (s *Store) CheckIntegrity(ctx context.Context) ([]Violation, error) {
	var out []Violation
	for _, r := range s.integrityRules() {
		var n int
		q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", quote(TripsTable), r.where)
		if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
			return nil, fmt.Errorf("check %q: %w", r.name, err)
		}
		if n > 0 {
			out = append(out, Violation{Rule: r.name, Rows: n})
		}
	}
	return out, nil
}
