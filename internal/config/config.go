package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version     string
	Environment string
	WorkerID    string
	Port        int
	LogLevel    string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// Workspace (frames, backups, videos, config, logs)
	WorkspaceRoot string

	// Postgres
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// NATS (job result and video events)
	NatsEnabled        bool
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int

	// Capture
	MaxRetries         int
	RetryDelay         time.Duration
	ConnectTestTimeout time.Duration
	CaptureTimeout     time.Duration
	BurstSize          int
	BurstDelay         time.Duration
	StreamEncoding     string

	// Session storage
	BackupKeep       int
	BackupPruneEvery int

	// Video assembly
	EncodeTimeout time.Duration

	// Timelapse scheduler
	ErrorThreshold      int
	RecoveryPause       time.Duration
	ConnectionLostPause time.Duration
	IdleCheckInterval   time.Duration
	DiskRecheckInterval time.Duration

	// Action queue
	ActionOrder        string // "asc" oldest first, "desc" newest first
	ActionPollInterval time.Duration
	ActionPostJobDelay time.Duration
	ActionErrorBackoff time.Duration

	// Discovery
	DiscoveryNetwork     string
	DiscoveryTTL         time.Duration
	DiscoveryPort        int
	DiscoveryDialTimeout time.Duration
	DiscoveryWorkers     int

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		WorkerID:    getEnv("WORKER_ID", "xcam-worker-1"),
		Port:        getEnvInt("PORT", 8500),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Logdy
		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		// Workspace
		WorkspaceRoot: getEnv("WORKSPACE_ROOT", defaultWorkspace()),

		// Postgres
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvInt("POSTGRES_PORT", 5432),
		PostgresUser:     getEnv("POSTGRES_USER", "xcam"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "xcam"),
		PostgresDB:       getEnv("POSTGRES_DB", "xcam"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		// NATS
		NatsEnabled:        getEnvBool("NATS_ENABLED", false),
		NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1),

		// Capture
		MaxRetries:         getEnvInt("MAX_RETRIES", 3),
		RetryDelay:         getEnvDuration("RETRY_DELAY", 5*time.Second),
		ConnectTestTimeout: getEnvDuration("CONNECT_TEST_TIMEOUT", 15*time.Second),
		CaptureTimeout:     getEnvDuration("CAPTURE_TIMEOUT", 30*time.Second),
		BurstSize:          getEnvInt("BURST_SIZE", 3),
		BurstDelay:         getEnvDuration("BURST_DELAY", 500*time.Millisecond),
		StreamEncoding:     getEnv("STREAM_ENCODING", "h264"),

		// Session storage
		BackupKeep:       getEnvInt("BACKUP_KEEP", 100),
		BackupPruneEvery: getEnvInt("BACKUP_PRUNE_EVERY", 50),

		// Video assembly
		EncodeTimeout: getEnvDuration("ENCODE_TIMEOUT", 10*time.Minute),

		// Timelapse scheduler
		ErrorThreshold:      getEnvInt("ERROR_THRESHOLD", 5),
		RecoveryPause:       getEnvDuration("RECOVERY_PAUSE", 30*time.Second),
		ConnectionLostPause: getEnvDuration("CONNECTION_LOST_PAUSE", 60*time.Second),
		IdleCheckInterval:   getEnvDuration("IDLE_CHECK_INTERVAL", 5*time.Second),
		DiskRecheckInterval: getEnvDuration("DISK_RECHECK_INTERVAL", 30*time.Second),

		// Action queue
		ActionOrder:        getEnv("ACTION_ORDER", "desc"),
		ActionPollInterval: getEnvDuration("ACTION_POLL_INTERVAL", 2*time.Second),
		ActionPostJobDelay: getEnvDuration("ACTION_POST_JOB_DELAY", 3*time.Second),
		ActionErrorBackoff: getEnvDuration("ACTION_ERROR_BACKOFF", 10*time.Second),

		// Discovery
		DiscoveryNetwork:     getEnv("DISCOVERY_NETWORK", "192.168.1.0/24"),
		DiscoveryTTL:         getEnvDuration("DISCOVERY_TTL", time.Hour),
		DiscoveryPort:        getEnvInt("DISCOVERY_PORT", 554),
		DiscoveryDialTimeout: getEnvDuration("DISCOVERY_DIAL_TIMEOUT", 500*time.Millisecond),
		DiscoveryWorkers:     getEnvInt("DISCOVERY_WORKERS", 100),

		// Graceful Shutdown
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func defaultWorkspace() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mycamcontrol"
	}
	return filepath.Join(home, ".mycamcontrol")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
