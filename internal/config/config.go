// Package config centralizes all application configuration into typed structs.
//
// Go Learning Note — Configuration Management:
// Defaults live in NewDefaultConfig as plain struct literals. Load starts from
// those defaults and lets environment variables override individual fields,
// which is how the server is configured in containers. cmd/server loads a
// local .env file first (github.com/joho/godotenv), so the same variables
// work during development.
//
// Using typed structs (not raw strings/maps) gives you compile-time safety
// and IDE autocompletion.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Pin store kinds accepted in StorageConfig.PinStore.
const (
	PinStoreMemory   = "memory"
	PinStoreFile     = "file"
	PinStorePostgres = "postgres"
)

// Config is the top-level configuration container.
//
// Go Learning Note — Struct Composition:
// Config "has a" ServerConfig, GeoConfig, and so on. Grouping settings per
// concern keeps each constructor's parameter list short: main passes only
// the sub-struct a component needs.
type Config struct {
	Server    ServerConfig
	Geo       GeoConfig
	Proximity ProximityConfig
	Sources   SourcesConfig
	Storage   StorageConfig
	Postgres  PostgresConfig
	Firestore FirestoreConfig
	NATS      NATSConfig
	Sync      SyncConfig
	Admin     AdminConfig
	Device    DeviceConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CorsOrigins     []string
}

// GeoConfig controls the geohash precision used for backend documents and
// the cell size of the in-memory grid index. Precision 6 is about a
// 1.2 km x 0.6 km cell; a grid resolution of 0.0005 degrees is about 50 m.
type GeoConfig struct {
	GeohashPrecision int
	GridResolution   float64
}

// ProximityConfig holds the aggregator thresholds and the limits for ad-hoc
// radius queries.
type ProximityConfig struct {
	MinMovementMeters    float64
	ZoneRadiusMeters     float64
	NearbyRadiusMeters   float64 // default radius for /memories/nearby and /kilroys/nearby
	MaxQueryRadiusMeters float64
}

// SourcesConfig says where the photo sources read from. An empty LibraryDir
// or GooglePhotosToken disables that source.
type SourcesConfig struct {
	LibraryDir          string
	GooglePhotosToken   string
	GooglePhotosBaseURL string
	MaxCloudItems       int
	RequestInterval     time.Duration // minimum gap between cloud page requests
	RebuildInterval     time.Duration // 0 disables periodic rebuilds
}

// StorageConfig selects the local pin store.
type StorageConfig struct {
	PinStore string
	DataDir  string
}

type PostgresConfig struct {
	DSN      string
	MaxConns int32
}

// FirestoreConfig configures the backend document store. An empty ProjectID
// keeps documents in memory.
type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
}

// NATSConfig configures event publishing. An empty URL disables NATS.
type NATSConfig struct {
	URL            string
	SubjectPrefix  string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// SyncConfig controls background upload of dropped pins.
type SyncConfig struct {
	MaxAttempts       int
	Backoff           time.Duration // first retry delay; doubles per attempt
	LockTTL           time.Duration
	LockSweepInterval time.Duration
}

// AdminConfig lists device ids allowed to seed backend documents.
type AdminConfig struct {
	DeviceIDs []string
}

// DeviceConfig identifies this server when it writes backend documents. An
// empty ID is replaced with a random UUID at startup.
type DeviceConfig struct {
	ID string
}

// NewDefaultConfig returns a Config populated with defaults suitable for
// local development: in-memory stores, no photo sources, no NATS.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CorsOrigins:     []string{"*"},
		},
		Geo: GeoConfig{
			GeohashPrecision: 6,
			GridResolution:   0.0005,
		},
		Proximity: ProximityConfig{
			MinMovementMeters:    10,
			ZoneRadiusMeters:     50,
			NearbyRadiusMeters:   50,
			MaxQueryRadiusMeters: 5000,
		},
		Sources: SourcesConfig{
			GooglePhotosBaseURL: "https://photoslibrary.googleapis.com/v1",
			MaxCloudItems:       5000,
			RequestInterval:     200 * time.Millisecond,
		},
		Storage: StorageConfig{
			PinStore: PinStoreMemory,
			DataDir:  "./data",
		},
		Postgres: PostgresConfig{
			MaxConns: 10,
		},
		NATS: NATSConfig{
			SubjectPrefix:  "kilroy",
			MaxReconnects:  10,
			ReconnectWait:  time.Second,
			ConnectTimeout: 2 * time.Second,
		},
		Sync: SyncConfig{
			MaxAttempts:       5,
			Backoff:           2 * time.Second,
			LockTTL:           time.Minute,
			LockSweepInterval: time.Minute,
		},
	}
}

// Load builds a Config from NewDefaultConfig and environment overrides, then
// validates it.
func Load() (*Config, error) {
	cfg := NewDefaultConfig()

	cfg.Server.Port = getEnv("KILROY_PORT", cfg.Server.Port)
	if !strings.Contains(cfg.Server.Port, ":") {
		cfg.Server.Port = ":" + cfg.Server.Port
	}
	cfg.Server.ReadTimeout = getEnvAsDuration("KILROY_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvAsDuration("KILROY_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.ShutdownTimeout = getEnvAsDuration("KILROY_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.CorsOrigins = getEnvAsSlice("KILROY_CORS_ORIGINS", cfg.Server.CorsOrigins)

	cfg.Geo.GeohashPrecision = getEnvAsInt("KILROY_GEOHASH_PRECISION", cfg.Geo.GeohashPrecision)
	cfg.Geo.GridResolution = getEnvAsFloat("KILROY_GRID_RESOLUTION", cfg.Geo.GridResolution)

	cfg.Proximity.MinMovementMeters = getEnvAsFloat("KILROY_MIN_MOVEMENT_METERS", cfg.Proximity.MinMovementMeters)
	cfg.Proximity.ZoneRadiusMeters = getEnvAsFloat("KILROY_ZONE_RADIUS_METERS", cfg.Proximity.ZoneRadiusMeters)
	cfg.Proximity.NearbyRadiusMeters = getEnvAsFloat("KILROY_NEARBY_RADIUS_METERS", cfg.Proximity.NearbyRadiusMeters)
	cfg.Proximity.MaxQueryRadiusMeters = getEnvAsFloat("KILROY_MAX_QUERY_RADIUS_METERS", cfg.Proximity.MaxQueryRadiusMeters)

	cfg.Sources.LibraryDir = getEnv("KILROY_LIBRARY_DIR", cfg.Sources.LibraryDir)
	cfg.Sources.GooglePhotosToken = getEnv("GOOGLE_PHOTOS_TOKEN", cfg.Sources.GooglePhotosToken)
	cfg.Sources.GooglePhotosBaseURL = getEnv("GOOGLE_PHOTOS_BASE_URL", cfg.Sources.GooglePhotosBaseURL)
	cfg.Sources.MaxCloudItems = getEnvAsInt("KILROY_MAX_CLOUD_ITEMS", cfg.Sources.MaxCloudItems)
	cfg.Sources.RequestInterval = getEnvAsDuration("KILROY_PHOTOS_REQUEST_INTERVAL", cfg.Sources.RequestInterval)
	cfg.Sources.RebuildInterval = getEnvAsDuration("KILROY_REBUILD_INTERVAL", cfg.Sources.RebuildInterval)

	cfg.Storage.PinStore = strings.ToLower(getEnv("KILROY_PIN_STORE", cfg.Storage.PinStore))
	cfg.Storage.DataDir = getEnv("KILROY_DATA_DIR", cfg.Storage.DataDir)

	cfg.Postgres.DSN = getEnv("DATABASE_URL", cfg.Postgres.DSN)
	cfg.Postgres.MaxConns = int32(getEnvAsInt("DATABASE_MAX_CONNS", int(cfg.Postgres.MaxConns)))

	cfg.Firestore.ProjectID = getEnv("FIRESTORE_PROJECT_ID", cfg.Firestore.ProjectID)
	cfg.Firestore.CredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", cfg.Firestore.CredentialsFile)

	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)
	cfg.NATS.MaxReconnects = getEnvAsInt("NATS_MAX_RECONNECTS", cfg.NATS.MaxReconnects)
	cfg.NATS.ReconnectWait = getEnvAsDuration("NATS_RECONNECT_WAIT", cfg.NATS.ReconnectWait)
	cfg.NATS.ConnectTimeout = getEnvAsDuration("NATS_CONNECT_TIMEOUT", cfg.NATS.ConnectTimeout)

	cfg.Sync.MaxAttempts = getEnvAsInt("KILROY_SYNC_MAX_ATTEMPTS", cfg.Sync.MaxAttempts)
	cfg.Sync.Backoff = getEnvAsDuration("KILROY_SYNC_BACKOFF", cfg.Sync.Backoff)
	cfg.Sync.LockTTL = getEnvAsDuration("KILROY_SYNC_LOCK_TTL", cfg.Sync.LockTTL)

	cfg.Admin.DeviceIDs = getEnvAsSlice("KILROY_ADMIN_DEVICE_IDS", cfg.Admin.DeviceIDs)
	cfg.Device.ID = getEnv("KILROY_DEVICE_ID", cfg.Device.ID)

	return cfg, cfg.Validate()
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Geo.GeohashPrecision < 1 || c.Geo.GeohashPrecision > 12 {
		errs = append(errs, fmt.Errorf("geohash precision %d out of range 1..12", c.Geo.GeohashPrecision))
	}
	if c.Geo.GridResolution <= 0 {
		errs = append(errs, fmt.Errorf("grid resolution must be positive, got %g", c.Geo.GridResolution))
	}
	if c.Proximity.ZoneRadiusMeters <= 0 || c.Proximity.MinMovementMeters < 0 {
		errs = append(errs, errors.New("proximity thresholds must be positive"))
	}
	if c.Proximity.MaxQueryRadiusMeters < c.Proximity.NearbyRadiusMeters {
		errs = append(errs, errors.New("max query radius is below the default nearby radius"))
	}
	switch c.Storage.PinStore {
	case PinStoreMemory, PinStoreFile:
	case PinStorePostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("pin store postgres requires DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown pin store %q", c.Storage.PinStore))
	}
	if c.Sync.MaxAttempts < 1 {
		errs = append(errs, errors.New("sync max attempts must be at least 1"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
