package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/couchcryptid/urban-mobility-etl/internal/config"
	"github.com/couchcryptid/urban-mobility-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes enriched trips to a Kafka topic.
// It implements pipeline.TripPublisher.
type Writer struct {
	writer    messageWriter
	batchSize int
	logger    *slog.Logger
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewWriter creates a Kafka producer for the configured trip topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    cfg.BatchSize,
	}
	return &Writer{writer: w, batchSize: cfg.BatchSize, logger: logger}
}

// PublishTrips serializes trips and writes them in BatchSize chunks. Messages
// are keyed by pickup location so one zone's trips share a partition.
func (w *Writer) PublishTrips(ctx context.Context, trips []domain.Trip) (int, error) {
	if len(trips) == 0 {
		return 0, nil
	}
	processedAt := domain.Now()

	sent := 0
	msgs := make([]kafkago.Message, 0, min(w.batchSize, len(trips)))
	for start := 0; start < len(trips); start += w.batchSize {
		end := min(start+w.batchSize, len(trips))
		msgs = msgs[:0]
		for i := start; i < end; i++ {
			msg, err := serializeToMessage(&trips[i], processedAt)
			if err != nil {
				return sent, err
			}
			msgs = append(msgs, msg)
		}
		if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
			return sent, fmt.Errorf("publish trips: %w", err)
		}
		sent += len(msgs)
		w.logger.Debug("published trip batch", "count", len(msgs), "total", sent)
	}
	return sent, nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// tripPayload is the wire form of an enriched trip. Missing measures are
// encoded as null since JSON has no NaN.
type tripPayload struct {
	VendorID             *int64       `json:"VendorID"`
	PickupDatetime       string       `json:"tpep_pickup_datetime"`
	DropoffDatetime      string       `json:"tpep_dropoff_datetime"`
	PassengerCount       *float64     `json:"passenger_count"`
	TripDistance         *float64     `json:"trip_distance"`
	RatecodeID           *int64       `json:"RatecodeID"`
	StoreAndFwdFlag      string       `json:"store_and_fwd_flag"`
	PULocationID         int64        `json:"PULocationID"`
	DOLocationID         int64        `json:"DOLocationID"`
	PaymentType          *int64       `json:"payment_type"`
	FareAmount           *float64     `json:"fare_amount"`
	Extra                *float64     `json:"extra"`
	MTATax               *float64     `json:"mta_tax"`
	TipAmount            *float64     `json:"tip_amount"`
	TollsAmount          *float64     `json:"tolls_amount"`
	ImprovementSurcharge *float64     `json:"improvement_surcharge"`
	TotalAmount          *float64     `json:"total_amount"`
	CongestionSurcharge  *float64     `json:"congestion_surcharge"`
	PickupZone           *domain.Zone `json:"pickup_zone"`
	DurationMins         *float64     `json:"duration_mins"`
	AvgSpeedMPH          *float64     `json:"avg_speed_mph"`
	TipPercentage        *float64     `json:"tip_percentage"`
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// serializeToMessage marshals an enriched trip into a Kafka message.
func serializeToMessage(t *domain.Trip, processedAt time.Time) (kafkago.Message, error) {
	payload := tripPayload{
		VendorID:             t.VendorID,
		PickupDatetime:       t.PickupAt.Format(domain.TimestampLayout),
		DropoffDatetime:      t.DropoffAt.Format(domain.TimestampLayout),
		PassengerCount:       finite(t.PassengerCount),
		TripDistance:         finite(t.TripDistance),
		RatecodeID:           t.RatecodeID,
		StoreAndFwdFlag:      t.StoreAndFwdFlag,
		PULocationID:         t.PULocationID,
		DOLocationID:         t.DOLocationID,
		PaymentType:          t.PaymentType,
		FareAmount:           finite(t.FareAmount),
		Extra:                finite(t.Extra),
		MTATax:               finite(t.MTATax),
		TipAmount:            finite(t.TipAmount),
		TollsAmount:          finite(t.TollsAmount),
		ImprovementSurcharge: finite(t.ImprovementSurcharge),
		TotalAmount:          finite(t.TotalAmount),
		CongestionSurcharge:  finite(t.CongestionSurcharge),
		PickupZone:           t.PickupZone,
		DurationMins:         finite(t.DurationMins),
		AvgSpeedMPH:          finite(t.AvgSpeedMPH),
		TipPercentage:        finite(t.TipPercentage),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize trip: %w", err)
	}

	borough := ""
	if t.PickupZone != nil {
		borough = t.PickupZone.Borough
	}
	return kafkago.Message{
		Key:   []byte(strconv.FormatInt(t.PULocationID, 10)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "pu_borough", Value: []byte(borough)},
			{Key: "processed_at", Value: []byte(processedAt.Format(time.RFC3339))},
		},
	}, nil
}
