package sqlstore

import (
	"math"
	"time"

	"github.com/couchcryptid/urban-mobility-etl/internal/domain"
)

// Table names.
const (
	TripsTable = "trips"
	ZonesTable = "zones"
)

type columnKind int

const (
	kindInteger columnKind = iota
	kindReal
	kindText
	kindTimestamp
)

// column describes one output column and how to read it from a row.
type column[T any] struct {
	name  string
	kind  columnKind
	value func(*T) any
}

// tableSchema is an ordered column list for one table.
type tableSchema[T any] struct {
	name    string
	columns []column[T]
}

func (s tableSchema[T]) names() []string {
	out := make([]string, len(s.columns))
	for i, c := range s.columns {
		out[i] = c.name
	}
	return out
}

// tripsSchema mirrors the TLC columns, then the joined lookup columns, then the
// derived features.
var tripsSchema = tableSchema[domain.Trip]{
	name: TripsTable,
	columns: []column[domain.Trip]{
		{domain.ColVendorID, kindInteger, func(t *domain.Trip) any { return optionalInt(t.VendorID) }},
		{domain.ColPickupDatetime, kindTimestamp, func(t *domain.Trip) any { return t.PickupAt }},
		{domain.ColDropoffDatetime, kindTimestamp, func(t *domain.Trip) any { return t.DropoffAt }},
		{domain.ColPassengerCount, kindReal, func(t *domain.Trip) any { return t.PassengerCount }},
		{domain.ColTripDistance, kindReal, func(t *domain.Trip) any { return t.TripDistance }},
		{domain.ColRatecodeID, kindInteger, func(t *domain.Trip) any { return optionalInt(t.RatecodeID) }},
		{domain.ColStoreAndFwdFlag, kindText, func(t *domain.Trip) any { return t.StoreAndFwdFlag }},
		{domain.ColPULocationID, kindInteger, func(t *domain.Trip) any { return t.PULocationID }},
		{domain.ColDOLocationID, kindInteger, func(t *domain.Trip) any { return t.DOLocationID }},
		{domain.ColPaymentType, kindInteger, func(t *domain.Trip) any { return optionalInt(t.PaymentType) }},
		{domain.ColFareAmount, kindReal, func(t *domain.Trip) any { return t.FareAmount }},
		{domain.ColExtra, kindReal, func(t *domain.Trip) any { return t.Extra }},
		{domain.ColMTATax, kindReal, func(t *domain.Trip) any { return t.MTATax }},
		{domain.ColTipAmount, kindReal, func(t *domain.Trip) any { return t.TipAmount }},
		{domain.ColTollsAmount, kindReal, func(t *domain.Trip) any { return t.TollsAmount }},
		{domain.ColImprovementSurcharge, kindReal, func(t *domain.Trip) any { return t.ImprovementSurcharge }},
		{domain.ColTotalAmount, kindReal, func(t *domain.Trip) any { return t.TotalAmount }},
		{domain.ColCongestionSurcharge, kindReal, func(t *domain.Trip) any { return t.CongestionSurcharge }},
		{domain.ColLocationID, kindInteger, func(t *domain.Trip) any {
			if t.PickupZone == nil {
				return nil
			}
			return t.PickupZone.LocationID
		}},
		{"pu_borough", kindText, func(t *domain.Trip) any {
			if t.PickupZone == nil {
				return nil
			}
			return t.PickupZone.Borough
		}},
		{"pu_zone", kindText, func(t *domain.Trip) any {
			if t.PickupZone == nil {
				return nil
			}
			return t.PickupZone.Zone
		}},
		{domain.ColServiceZone, kindText, func(t *domain.Trip) any {
			if t.PickupZone == nil {
				return nil
			}
			return t.PickupZone.ServiceZone
		}},
		{"duration_mins", kindReal, func(t *domain.Trip) any { return t.DurationMins }},
		{"avg_speed_mph", kindReal, func(t *domain.Trip) any { return t.AvgSpeedMPH }},
		{"tip_percentage", kindReal, func(t *domain.Trip) any { return t.TipPercentage }},
	},
}

var zonesSchema = tableSchema[domain.Zone]{
	name: ZonesTable,
	columns: []column[domain.Zone]{
		{domain.ColLocationID, kindInteger, func(z *domain.Zone) any { return z.LocationID }},
		{domain.ColBorough, kindText, func(z *domain.Zone) any { return z.Borough }},
		{domain.ColZone, kindText, func(z *domain.Zone) any { return z.Zone }},
		{domain.ColServiceZone, kindText, func(z *domain.Zone) any { return z.ServiceZone }},
	},
}

// knownTables guards table names interpolated into SQL.
var knownTables = map[string]bool{TripsTable: true, ZonesTable: true}

// nullable maps NaN and infinities to NULL.
func nullable(v any) any {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil
	}
	return v
}

// optionalInt maps a nil code to NULL.
func optionalInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

// timestampText renders a timestamp the way it appears in the TLC source file.
func timestampText(v any) any {
	if ts, ok := v.(time.Time); ok {
		return ts.Format(domain.TimestampLayout)
	}
	return v
}
