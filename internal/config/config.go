package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const devJWTSecret = "default-dev-secret"

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database. DatabaseURL, when set, wins over the DB_* parts.
	DatabaseURL string
	DBHost      string
	DBPort      int
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	// Redis config
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// AWS / push queue. An empty PushQueueURL keeps push delivery in-process.
	AWSRegion    string
	PushQueueURL string

	// Expo push gateway
	ExpoPushURL           string
	ExpoAccessToken       string
	PushChannelID         string
	PushChunkSize         int
	PushRequestsPerSecond float64
	PushTimeout           time.Duration

	// Fan-out worker pool. FanoutTaskTimeout bounds resolution and the row
	// write; the push send phase extends itself to fit the chunk count.
	FanoutWorkers     int
	FanoutQueueSize   int
	FanoutTaskTimeout time.Duration

	// Recipient resolution
	GovCacheTTL time.Duration

	// HTTP surface
	JWTSecret      string
	InternalAPIKey string
	CORSOrigins    []string
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     3000,
		LogLevel: "info",
		Env:      "development",

		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "postgres",
		DBPassword: "",
		DBName:     "citizen",
		DBSSLMode:  "disable",

		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		AWSRegion: "ap-southeast-1",

		ExpoPushURL:           "https://exp.host/--/api/v2/push/send",
		PushChannelID:         "default",
		PushChunkSize:         100,
		PushRequestsPerSecond: 6,
		PushTimeout:           15 * time.Second,

		FanoutWorkers:     4,
		FanoutQueueSize:   256,
		FanoutTaskTimeout: 30 * time.Second,

		GovCacheTTL: 5 * time.Minute,

		JWTSecret:   devJWTSecret,
		CORSOrigins: []string{"http://localhost:8081"},
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.DatabaseURL = url
	}

	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	if url := os.Getenv("PUSH_QUEUE_URL"); url != "" {
		cfg.PushQueueURL = url
	}

	// Expo push gateway
	if url := os.Getenv("EXPO_PUSH_URL"); url != "" {
		cfg.ExpoPushURL = url
	}

	if token := os.Getenv("EXPO_ACCESS_TOKEN"); token != "" {
		cfg.ExpoAccessToken = token
	}

	if channel := os.Getenv("PUSH_CHANNEL_ID"); channel != "" {
		cfg.PushChannelID = channel
	}

	if size := os.Getenv("PUSH_CHUNK_SIZE"); size != "" {
		s, err := strconv.Atoi(size)
		if err != nil || s <= 0 {
			return nil, fmt.Errorf("invalid PUSH_CHUNK_SIZE: %q", size)
		}
		cfg.PushChunkSize = s
	}

	if rps := os.Getenv("PUSH_REQUESTS_PER_SECOND"); rps != "" {
		r, err := strconv.ParseFloat(rps, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid PUSH_REQUESTS_PER_SECOND: %w", err)
		}
		cfg.PushRequestsPerSecond = r
	}

	if timeout := os.Getenv("PUSH_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid PUSH_TIMEOUT: %w", err)
		}
		cfg.PushTimeout = d
	}

	// Fan-out pool
	if workers := os.Getenv("FANOUT_WORKERS"); workers != "" {
		w, err := strconv.Atoi(workers)
		if err != nil || w <= 0 {
			return nil, fmt.Errorf("invalid FANOUT_WORKERS: %q", workers)
		}
		cfg.FanoutWorkers = w
	}

	if size := os.Getenv("FANOUT_QUEUE_SIZE"); size != "" {
		s, err := strconv.Atoi(size)
		if err != nil || s <= 0 {
			return nil, fmt.Errorf("invalid FANOUT_QUEUE_SIZE: %q", size)
		}
		cfg.FanoutQueueSize = s
	}

	if timeout := os.Getenv("FANOUT_TASK_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid FANOUT_TASK_TIMEOUT: %w", err)
		}
		cfg.FanoutTaskTimeout = d
	}

	if ttl := os.Getenv("GOV_CACHE_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid GOV_CACHE_TTL: %w", err)
		}
		cfg.GovCacheTTL = d
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWTSecret = secret
	}

	if key := os.Getenv("INTERNAL_API_KEY"); key != "" {
		cfg.InternalAPIKey = key
	}

	if origins := os.Getenv("CORS_ORIGIN"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	if cfg.IsProduction() && cfg.JWTSecret == devJWTSecret {
		return nil, errors.New("JWT_SECRET must be set when ENV=production")
	}

	return cfg, nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
