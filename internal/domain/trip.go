package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// TimestampLayout is the TLC trip record timestamp format.
const TimestampLayout = "2006-01-02 15:04:05"

// Trip column names as they appear in the TLC CSV header.
const (
	ColVendorID             = "VendorID"
	ColPickupDatetime       = "tpep_pickup_datetime"
	ColDropoffDatetime      = "tpep_dropoff_datetime"
	ColPassengerCount       = "passenger_count"
	ColTripDistance         = "trip_distance"
	ColRatecodeID           = "RatecodeID"
	ColStoreAndFwdFlag      = "store_and_fwd_flag"
	ColPULocationID         = "PULocationID"
	ColDOLocationID         = "DOLocationID"
	ColPaymentType          = "payment_type"
	ColFareAmount           = "fare_amount"
	ColExtra                = "extra"
	ColMTATax               = "mta_tax"
	ColTipAmount            = "tip_amount"
	ColTollsAmount          = "tolls_amount"
	ColImprovementSurcharge = "improvement_surcharge"
	ColTotalAmount          = "total_amount"
	ColCongestionSurcharge  = "congestion_surcharge"
)

// TripHeader lists the TLC yellow taxi columns in file order.
var TripHeader = []string{
	ColVendorID, ColPickupDatetime, ColDropoffDatetime, ColPassengerCount,
	ColTripDistance, ColRatecodeID, ColStoreAndFwdFlag, ColPULocationID,
	ColDOLocationID, ColPaymentType, ColFareAmount, ColExtra, ColMTATax,
	ColTipAmount, ColTollsAmount, ColImprovementSurcharge, ColTotalAmount,
	ColCongestionSurcharge,
}

// Zone lookup column names.
const (
	ColLocationID  = "LocationID"
	ColBorough     = "Borough"
	ColZone        = "Zone"
	ColServiceZone = "service_zone"
)

// ZoneHeader lists the zone lookup columns in file order.
var ZoneHeader = []string{ColLocationID, ColBorough, ColZone, ColServiceZone}

// Trip is one yellow taxi trip record, enriched in place by the join and
// derive stages.
//
// VendorID, RatecodeID and PaymentType are nil when the source field is empty.
type Trip struct {
	VendorID             *int64
	PickupAt             time.Time
	DropoffAt            time.Time
	PassengerCount       float64
	TripDistance         float64
	RatecodeID           *int64
	StoreAndFwdFlag      string
	PULocationID         int64
	DOLocationID         int64
	PaymentType          *int64
	FareAmount           float64
	Extra                float64
	MTATax               float64
	TipAmount            float64
	TollsAmount          float64
	ImprovementSurcharge float64
	TotalAmount          float64
	CongestionSurcharge  float64

	// PickupZone is the lookup row matched on PULocationID, nil when the
	// trip's pickup location has no lookup entry.
	PickupZone *Zone

	DurationMins  float64
	AvgSpeedMPH   float64
	TipPercentage float64
}

// Zone is one row of the taxi zone lookup table.
type Zone struct {
	LocationID  int64  `json:"LocationID"`
	Borough     string `json:"Borough"`
	Zone        string `json:"Zone"`
	ServiceZone string `json:"service_zone"`
}

// ZoneFeature is one taxi zone polygon with its shapefile attributes.
type ZoneFeature struct {
	Geometry   orb.Geometry
	Properties map[string]any
}
