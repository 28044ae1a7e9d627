//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/urban-mobility-etl/internal/adapter/csvsource"
	"github.com/couchcryptid/urban-mobility-etl/internal/adapter/geojson"
	"github.com/couchcryptid/urban-mobility-etl/internal/adapter/kafka"
	"github.com/couchcryptid/urban-mobility-etl/internal/adapter/shapefile"
	"github.com/couchcryptid/urban-mobility-etl/internal/adapter/sqlstore"
	"github.com/couchcryptid/urban-mobility-etl/internal/config"
	"github.com/couchcryptid/urban-mobility-etl/internal/domain"
	"github.com/couchcryptid/urban-mobility-etl/internal/observability"
	"github.com/couchcryptid/urban-mobility-etl/internal/pipeline"
	shp "github.com/jonas-p/go-shp"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testTopic = "test-enriched-trips"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("urban-mobility-test"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     3,
		ReplicationFactor: 1,
	}))
}

// publishedTrip holds a message read back from the topic.
type publishedTrip struct {
	Key     string
	Headers map[string]string
	Payload map[string]any
}

func readPublished(ctx context.Context, t *testing.T, broker string, want int) []publishedTrip {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out := make([]publishedTrip, 0, want)
	for len(out) < want {
		msg, err := consumer.ReadMessage(readCtx)
		require.NoError(t, err, "read from topic")

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		var payload map[string]any
		require.NoError(t, json.Unmarshal(msg.Value, &payload), "unmarshal trip message")
		out = append(out, publishedTrip{Key: string(msg.Key), Headers: headers, Payload: payload})
	}
	return out
}

// TestKafkaWriter_PublishTrips verifies enriched trips round-trip through a
// real broker with their key and headers.
func TestKafkaWriter_PublishTrips(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic, BatchSize: 2}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	pickup := time.Date(2019, time.January, 1, 0, 15, 0, 0, time.UTC)
	zone := &domain.Zone{LocationID: 132, Borough: "Queens", Zone: "JFK Airport", ServiceZone: "Airports"}
	trips := []domain.Trip{
		{PULocationID: 132, PickupZone: zone, PickupAt: pickup, DropoffAt: pickup.Add(20 * time.Minute), TripDistance: 5, FareAmount: 15, DurationMins: 20, AvgSpeedMPH: 15},
		{PULocationID: 265, PickupAt: pickup, DropoffAt: pickup.Add(10 * time.Minute), TripDistance: 2, FareAmount: 9, DurationMins: 10, AvgSpeedMPH: 12},
		{PULocationID: 132, PickupZone: zone, PickupAt: pickup, DropoffAt: pickup.Add(5 * time.Minute), TripDistance: 1, FareAmount: 6, DurationMins: 5, AvgSpeedMPH: 12},
	}

	n, err := writer.PublishTrips(ctx, trips)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	received := readPublished(ctx, t, broker, 3)
	byKey := map[string]int{}
	for _, m := range received {
		byKey[m.Key]++
		_, err := time.Parse(time.RFC3339, m.Headers["processed_at"])
		assert.NoError(t, err, "processed_at should be valid RFC3339")
		if m.Key == "132" {
			assert.Equal(t, "Queens", m.Headers["pu_borough"])
		} else {
			assert.Empty(t, m.Headers["pu_borough"])
			assert.Nil(t, m.Payload["pickup_zone"])
		}
	}
	assert.Equal(t, map[string]int{"132": 2, "265": 1}, byKey)
}

// TestPipelineEndToEnd wires file sources, SQLite and the Kafka publisher and
// checks that every persisted trip is also published.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	dir := t.TempDir()
	header := strings.Join(domain.TripHeader, ",")
	trips := header + "\n" +
		"1,2019-01-01 00:15:00,2019-01-01 00:30:00,1,5,1,N,132,236,1,20,0.5,0.5,4,0,0.3,25.3,\n" +
		"2,2019-01-01 00:46:40,2019-01-01 00:53:20,2,1.5,1,N,161,239,1,7,0.5,0.5,1.65,0,0.3,9.95,\n" +
		"1,2019-01-01 02:00:00,2019-01-01 02:10:00,1,-1,1,N,132,236,1,10,0.5,0.5,0,0,0.3,11.3,\n"
	lookup := "LocationID,Borough,Zone,service_zone\n132,Queens,JFK Airport,Airports\n161,Manhattan,Midtown Center,Yellow Zone\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trips.csv"), []byte(trips), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lookup.csv"), []byte(lookup), 0o644))

	shapePath := filepath.Join(dir, "taxi_zones.shp")
	sw, err := shp.Create(shapePath, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, sw.SetFields([]shp.Field{shp.NumberField("LocationID", 9)}))
	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0}}}))
	require.NoError(t, sw.WriteAttribute(int(sw.Write(&poly)), 0, 132))
	sw.Close()

	logger := discardLogger()
	store, err := sqlstore.Open(ctx, "sqlite", filepath.Join(dir, "urban_mobility.db"), 50, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic, BatchSize: 50}
	writer := kafka.NewWriter(cfg, logger)
	t.Cleanup(func() { _ = writer.Close() })

	metrics, _ := observability.NewMetricsForTesting()
	p := pipeline.New(
		pipeline.Sources{
			Trips:  csvsource.NewTripReader(filepath.Join(dir, "trips.csv"), logger),
			Zones:  csvsource.NewZoneReader(filepath.Join(dir, "lookup.csv"), logger),
			Shapes: shapefile.NewReader(shapePath, logger),
		},
		pipeline.Sinks{
			Tables:    store,
			Geometry:  geojson.NewWriter(filepath.Join(dir, "taxi_zones_final.json"), "taxi_zones", logger),
			Publisher: writer,
		},
		logger,
		metrics,
	)

	summary, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TripsPersisted)
	assert.Equal(t, 2, summary.TripsPublished)

	received := readPublished(ctx, t, broker, 2)
	boroughs := map[string]bool{}
	for _, m := range received {
		boroughs[m.Headers["pu_borough"]] = true
		assert.Greater(t, m.Payload["duration_mins"], 0.0)
	}
	assert.Equal(t, map[string]bool{"Queens": true, "Manhattan": true}, boroughs)
}
