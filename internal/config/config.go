package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	JWTSecret   string
	MongoURI    string
	DBName      string
	SkipAuth    bool
	Environment string
	AppId       string

	// Destination database the replicated tables are written to
	DestDriver string // "postgres", "mysql" or "sqlite"
	DestDSN    string

	Sync SyncOptions

	ProbeAttempts  int
	ProbeBaseDelay time.Duration

	// ProfileLock selects how concurrent runs of one profile are excluded:
	// "local" (in-process), "postgres" (advisory lock on the destination) or "none"
	ProfileLock string
}

// SyncOptions are handed to the table manager and the strategies.
type SyncOptions struct {
	TablePrefix string
	BatchSize   int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", "secret"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:      getEnv("DB_NAME", "go-datasync"),
		SkipAuth:    getEnv("SKIP_AUTH", "false") == "true",
		Environment: getEnv("ENVIRONMENT", "development"),
		AppId:       getEnv("APP_ID", "go-datasync"),
		DestDriver:  getEnv("DEST_DRIVER", "sqlite"),
		DestDSN:     getEnv("DEST_DSN", "file:datasync.db?_pragma=busy_timeout(5000)"),
		Sync: SyncOptions{
			TablePrefix: getEnv("TABLE_PREFIX", "sync_"),
			BatchSize:   getEnvInt("SYNC_BATCH_SIZE", 500),
		},
		ProbeAttempts:  getEnvInt("PROBE_ATTEMPTS", 3),
		ProbeBaseDelay: getEnvDuration("PROBE_BASE_DELAY", 200*time.Millisecond),
		ProfileLock:    getEnv("PROFILE_LOCK", "local"),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid %s=%q, using %d", key, value, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Invalid %s=%q, using %s", key, value, fallback)
		return fallback
	}
	return d
}
