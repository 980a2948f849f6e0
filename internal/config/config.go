package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	LogLevel    string
	NodeID      int64

	OTLPEndpoint string
	OTLPProtocol string
	OtelEnabled  bool

	LocalDBPath  string
	SettingsPath string

	Remote RemoteConfig
	Redis  RedisConfig
	Cache  CacheConfig
	Sync   SyncConfig
	Ledger LedgerConfig
	Limit  RateLimitConfig

	// ActorRoles maps an upstream-authenticated actor to its role, e.g. "alice:admin".
	ActorRoles map[string]string
}

type RemoteConfig struct {
	Type            string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime int
	Migrate         bool
	PriceProcedure  string
}

// Configured reports whether a remote backend should be dialed at all.
func (c RemoteConfig) Configured() bool {
	return strings.TrimSpace(c.Type) != ""
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type CacheConfig struct {
	Backend  string
	Key      string
	Debounce time.Duration
	Profile  string
}

type SyncConfig struct {
	PageSize         int
	FailurePolicy    string
	ReconcileOnStart bool
	OutboxInterval   time.Duration
	OutboxBatchSize  int
	LockTTL          time.Duration
}

// RateLimitConfig throttles the endpoints that hit the remote backend. It
// needs REDIS_ADDR; a zero rate disables it.
type RateLimitConfig struct {
	RemoteRate  float64
	RemoteBurst int
}

func (c RateLimitConfig) Enabled() bool {
	return c.RemoteRate > 0 && c.RemoteBurst > 0
}

type LedgerConfig struct {
	SalesCashPolicy    string
	PurchaseCashPolicy string
}

const (
	ProfileDesktop = "desktop"
	ProfileMobile  = "mobile"

	CacheBackendSQLite = "sqlite"
	CacheBackendRedis  = "redis"

	SyncPolicyAbort = "abort"
	SyncPolicySkip  = "skip"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "storeledger"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		LogLevel:     strings.ToLower(getenv("LOG_LEVEL", "info")),
		NodeID:       getenvInt64("NODE_ID", 1),
		OTLPEndpoint: strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")),
		OTLPProtocol: strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
		OtelEnabled:  getenvBool("OTEL_ENABLED", false),
		LocalDBPath:  getenv("LOCAL_DB_PATH", "storeledger.db"),
		SettingsPath: getenv("SETTINGS_PATH", "."),
		Remote: RemoteConfig{
			Type:            strings.ToLower(strings.TrimSpace(getenv("REMOTE_DB_TYPE", ""))),
			Host:            getenv("REMOTE_DB_HOST", "localhost"),
			Port:            getenv("REMOTE_DB_PORT", "5432"),
			Name:            getenv("REMOTE_DB_NAME", "storeledger"),
			User:            getenv("REMOTE_DB_USER", "postgres"),
			Password:        getenv("REMOTE_DB_PASSWORD", ""),
			SSLMode:         getenv("REMOTE_DB_SSLMODE", "disable"),
			MaxIdleConn:     int(getenvInt64("REMOTE_DB_MAX_IDLE_CONN", 4)),
			MaxOpenConn:     int(getenvInt64("REMOTE_DB_MAX_OPEN_CONN", 16)),
			ConnMaxLifetime: int(getenvInt64("REMOTE_DB_CONN_MAX_LIFETIME", 300)),
			Migrate:         getenvBool("REMOTE_MIGRATE", false),
			PriceProcedure:  strings.TrimSpace(getenv("REMOTE_PRICE_PROCEDURE", "")),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		Cache: CacheConfig{
			Backend:  normalizeCacheBackend(getenv("CACHE_BACKEND", CacheBackendSQLite)),
			Key:      getenv("CACHE_KEY", "storeledger:state"),
			Debounce: getenvDuration("CACHE_DEBOUNCE", time.Second),
			Profile:  normalizeProfile(getenv("CLIENT_PROFILE", ProfileDesktop)),
		},
		Sync: SyncConfig{
			PageSize:         int(getenvInt64("SYNC_PAGE_SIZE", 1000)),
			FailurePolicy:    normalizeSyncPolicy(getenv("SYNC_FAILURE_POLICY", SyncPolicyAbort)),
			ReconcileOnStart: getenvBool("RECONCILE_ON_START", false),
			OutboxInterval:   getenvDuration("OUTBOX_INTERVAL", 5*time.Second),
			OutboxBatchSize:  int(getenvInt64("OUTBOX_BATCH_SIZE", 100)),
			LockTTL:          getenvDuration("SYNC_LOCK_TTL", 2*time.Minute),
		},
		Ledger: LedgerConfig{
			SalesCashPolicy:    strings.ToLower(getenv("SALES_CASH_POLICY", "record_only")),
			PurchaseCashPolicy: strings.ToLower(getenv("PURCHASE_CASH_POLICY", "always_decrement")),
		},
		Limit: RateLimitConfig{
			RemoteRate:  getenvFloat("RATE_LIMIT_REMOTE_RATE", 0),
			RemoteBurst: int(getenvInt64("RATE_LIMIT_REMOTE_BURST", 3)),
		},
		ActorRoles: parseActorRoles(getenv("ACTOR_ROLES", "")),
	}

	return cfg
}

func (c Config) IsMobile() bool {
	return c.Cache.Profile == ProfileMobile
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewSettingsHolder),
)

func normalizeProfile(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ProfileMobile, "android", "ios":
		return ProfileMobile
	default:
		return ProfileDesktop
	}
}

func normalizeCacheBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case CacheBackendRedis:
		return CacheBackendRedis
	default:
		return CacheBackendSQLite
	}
}

func normalizeSyncPolicy(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case SyncPolicySkip:
		return SyncPolicySkip
	default:
		return SyncPolicyAbort
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseActorRoles(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		actor, role, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(actor) == "" || strings.TrimSpace(role) == "" {
			log.Printf("[config] ignoring malformed actor role %q", pair)
			continue
		}
		out[strings.TrimSpace(actor)] = strings.ToLower(strings.TrimSpace(role))
	}
	return out
}
