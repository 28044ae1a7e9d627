package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Default input and output file names, resolved under DataDir.
const (
	DefaultTripDataFile   = "yellow_tripdata_2019-01.csv"
	DefaultZoneLookupFile = "taxi_zone_lookup.csv"
	DefaultZoneShapefile  = "taxi_zones.shp"
	DefaultDatabaseFile   = "urban_mobility.db"
	DefaultGeoJSONFile    = "taxi_zones_final.json"
)

// Config holds all job settings, populated from environment variables.
type Config struct {
	DataDir        string `validate:"required"`
	TripDataFile   string `validate:"required"`
	ZoneLookupFile string `validate:"required"`
	ZoneShapefile  string `validate:"required"`
	GeoJSONOutput  string `validate:"required"`

	DatabaseDriver string `validate:"oneof=sqlite postgres"`
	DatabaseDSN    string `validate:"required"`
	BatchSize      int    `validate:"gt=0"`

	LogLevel        string `validate:"oneof=debug info warn error"`
	LogFormat       string `validate:"oneof=json text"`
	MetricsTextfile string
	ReportPath      string

	// Optional Kafka publishing of enriched trips.
	KafkaEnabled bool
	KafkaBrokers []string `validate:"required_if=KafkaEnabled true"`
	KafkaTopic   string   `validate:"required_if=KafkaEnabled true"`
}

// envNames maps struct fields to the variables that set them, for error messages.
var envNames = map[string]string{
	"DataDir":        "DATA_DIR",
	"TripDataFile":   "TRIP_DATA_FILE",
	"ZoneLookupFile": "ZONE_LOOKUP_FILE",
	"ZoneShapefile":  "ZONE_SHAPEFILE",
	"GeoJSONOutput":  "GEOJSON_OUTPUT",
	"DatabaseDriver": "DATABASE_DRIVER",
	"DatabaseDSN":    "DATABASE_DSN",
	"BatchSize":      "BATCH_SIZE",
	"LogLevel":       "LOG_LEVEL",
	"LogFormat":      "LOG_FORMAT",
	"KafkaBrokers":   "KAFKA_BROKERS",
	"KafkaTopic":     "KAFKA_TOPIC",
}

// Load reads configuration from an optional .env file and environment
// variables, applying defaults where unset.
func Load() (*Config, error) {
	// A missing .env file is normal; real env vars always win.
	_ = godotenv.Load()

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	dataDir := sharedcfg.EnvOrDefault("DATA_DIR", ".")

	cfg := &Config{
		DataDir:        dataDir,
		TripDataFile:   sharedcfg.EnvOrDefault("TRIP_DATA_FILE", DefaultTripDataFile),
		ZoneLookupFile: sharedcfg.EnvOrDefault("ZONE_LOOKUP_FILE", DefaultZoneLookupFile),
		ZoneShapefile:  sharedcfg.EnvOrDefault("ZONE_SHAPEFILE", DefaultZoneShapefile),
		GeoJSONOutput:  sharedcfg.EnvOrDefault("GEOJSON_OUTPUT", DefaultGeoJSONFile),

		DatabaseDriver: sharedcfg.EnvOrDefault("DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:    os.Getenv("DATABASE_DSN"),
		BatchSize:      batchSize,

		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),
		MetricsTextfile: os.Getenv("METRICS_TEXTFILE"),
		ReportPath:      os.Getenv("REPORT_PATH"),

		KafkaEnabled: os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "enriched-taxi-trips"),
	}
	if cfg.DatabaseDSN == "" && cfg.DatabaseDriver == "sqlite" {
		cfg.DatabaseDSN = DefaultDatabaseFile
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	fe := fieldErrs[0]
	name, ok := envNames[fe.Field()]
	if !ok {
		name = fe.Field()
	}
	if fe.Tag() == "required" || fe.Tag() == "required_if" {
		return fmt.Errorf("%s is required", name)
	}
	return fmt.Errorf("invalid %s: %v", name, fe.Value())
}

// TripDataPath returns the trip CSV location.
func (c *Config) TripDataPath() string { return c.resolve(c.TripDataFile) }

// ZoneLookupPath returns the zone lookup CSV location.
func (c *Config) ZoneLookupPath() string { return c.resolve(c.ZoneLookupFile) }

// ZoneShapefilePath returns the zone shapefile location.
func (c *Config) ZoneShapefilePath() string { return c.resolve(c.ZoneShapefile) }

// GeoJSONOutputPath returns the GeoJSON export location.
func (c *Config) GeoJSONOutputPath() string { return c.resolve(c.GeoJSONOutput) }

// DatabaseSource returns the DSN passed to the driver. SQLite file names are
// resolved under DataDir; PostgreSQL DSNs are used as given.
func (c *Config) DatabaseSource() string {
	if c.DatabaseDriver == "sqlite" {
		return c.resolve(c.DatabaseDSN)
	}
	return c.DatabaseDSN
}

func (c *Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}
