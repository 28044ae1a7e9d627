package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/urban-mobility-etl/internal/config"
	"github.com/couchcryptid/urban-mobility-etl/internal/domain"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	batches [][]kafkago.Message
	err     error
	closed  bool
}

func (r *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, append([]kafkago.Message(nil), msgs...))
	return nil
}

func (r *recordingWriter) Close() error {
	r.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func code(n int64) *int64 { return &n }

func sampleTrip(pu int64) domain.Trip {
	pickup := time.Date(2020, 1, 1, 0, 15, 0, 0, time.UTC)
	return domain.Trip{
		VendorID:            code(2),
		PickupAt:            pickup,
		DropoffAt:           pickup.Add(20 * time.Minute),
		PassengerCount:      1,
		TripDistance:        5,
		PULocationID:        pu,
		DOLocationID:        236,
		FareAmount:          15,
		TipAmount:           3,
		CongestionSurcharge: math.NaN(),
		DurationMins:        20,
		AvgSpeedMPH:         15,
		TipPercentage:       20,
	}
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	trip := sampleTrip(132)
	trip.PickupZone = &domain.Zone{LocationID: 132, Borough: "Queens", Zone: "JFK Airport", ServiceZone: "Airports"}

	msg, err := serializeToMessage(&trip, now)
	require.NoError(t, err)

	assert.Equal(t, []byte("132"), msg.Key)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "pu_borough", msg.Headers[0].Key)
	assert.Equal(t, []byte("Queens"), msg.Headers[0].Value)
	assert.Equal(t, "processed_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "2020-01-01 00:15:00", decoded["tpep_pickup_datetime"])
	assert.Nil(t, decoded["congestion_surcharge"], "NaN must serialize as null")
	assert.InDelta(t, 15.0, decoded["avg_speed_mph"], 1e-9)
	assert.Equal(t, "JFK Airport", decoded["pickup_zone"].(map[string]any)["Zone"])
	assert.InDelta(t, 2.0, decoded["VendorID"], 0)
	assert.Contains(t, decoded, "RatecodeID")
	assert.Nil(t, decoded["RatecodeID"], "missing codes must serialize as null")
}

func TestSerializeToMessage_UnmatchedZone(t *testing.T) {
	trip := sampleTrip(264)

	msg, err := serializeToMessage(&trip, time.Now())
	require.NoError(t, err)

	assert.Empty(t, msg.Headers[0].Value)
	assert.Contains(t, string(msg.Value), `"pickup_zone":null`)
}

func TestWriter_PublishTrips_Batches(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	domain.SetClock(fake)
	t.Cleanup(func() { domain.SetClock(nil) })

	rec := &recordingWriter{}
	w := &Writer{writer: rec, batchSize: 2, logger: discardLogger()}

	trips := []domain.Trip{sampleTrip(1), sampleTrip(2), sampleTrip(3), sampleTrip(4), sampleTrip(5)}
	n, err := w.PublishTrips(context.Background(), trips)
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	require.Len(t, rec.batches, 3)
	assert.Len(t, rec.batches[0], 2)
	assert.Len(t, rec.batches[2], 1)
	assert.Equal(t, []byte("5"), rec.batches[2][0].Key)
	assert.Equal(t, []byte("2024-01-01T12:00:00Z"), rec.batches[0][0].Headers[1].Value)
}

func TestWriter_PublishTrips_Empty(t *testing.T) {
	rec := &recordingWriter{}
	w := &Writer{writer: rec, batchSize: 2, logger: discardLogger()}

	n, err := w.PublishTrips(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, rec.batches)
}

func TestWriter_PublishTrips_Error(t *testing.T) {
	rec := &recordingWriter{err: errors.New("broker unavailable")}
	w := &Writer{writer: rec, batchSize: 2, logger: discardLogger()}

	n, err := w.PublishTrips(context.Background(), []domain.Trip{sampleTrip(1)})
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Contains(t, err.Error(), "publish trips: broker unavailable")
}

func TestNewWriter_UsesConfig(t *testing.T) {
	w := NewWriter(&config.Config{
		KafkaBrokers: []string{"broker:9092"},
		KafkaTopic:   "enriched-taxi-trips",
		BatchSize:    7,
	}, discardLogger())

	kw, ok := w.writer.(*kafkago.Writer)
	require.True(t, ok)
	assert.Equal(t, "enriched-taxi-trips", kw.Topic)
	assert.Equal(t, 7, w.batchSize)
	require.NoError(t, w.Close())
}
