package app

import "time"

// SQLitePathMemory selects the in-memory log store instead of SQLite.
// Useful for smoke runs; durability across restarts does not hold.
const SQLitePathMemory = "memory"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Postgres takes precedence when DatabaseURL is set; otherwise the log
	// lives in a single SQLite file at SQLitePath.
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	SQLitePath  string

	// If true, /readyz returns 503 unless Postgres is configured and reachable.
	ReadinessRequireDB bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("BEACON_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("BEACON_LOG_LEVEL", "info"),
		LogFormat: EnvString("BEACON_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("BEACON_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		IdleTimeout:       EnvDuration("BEACON_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("BEACON_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("BEACON_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("BEACON_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("BEACON_DB_MIN_CONNS", 0),
		SQLitePath:  EnvString("BEACON_SQLITE_PATH", "beacon.db"),

		ReadinessRequireDB: EnvBool("BEACON_READINESS_REQUIRE_DB", false),
	}
}
