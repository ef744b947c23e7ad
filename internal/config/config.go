package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env      string
	HTTPPort string

	// GitHub-backed document store. DataOwner/DataRepo hold the live JSON
	// documents; ArchiveOwner/ArchiveRepo receive the exported CSVs.
	GitHubToken  string
	GitHubAPIURL string
	DataOwner    string
	DataRepo     string
	ArchiveOwner string
	ArchiveRepo  string

	// Master admin (ICT) credentials. Never stored in the user directory.
	AdminUsername string
	AdminPassword string

	JWTIssuer     string
	JWTSigningKey string
	AccessTTL     time.Duration

	RedisAddr       string
	QueueBackend    string
	RateLimitPerMin int
}

// Load returns application config populated from environment variables with
// sensible defaults. A .env file in the working directory is applied first
// when present.
func Load() App {
	_ = godotenv.Load()
	return App{
		Env:             getEnv("APP_ENV", "dev"),
		HTTPPort:        getEnv("HTTP_PORT", "8081"),
		GitHubToken:     getEnv("GITHUB_PAT", ""),
		GitHubAPIURL:    getEnv("GITHUB_API_URL", "https://api.github.com"),
		DataOwner:       getEnv("DATA_OWNER", "successcugo"),
		DataRepo:        getEnv("DATA_REPO", "ULASDATA"),
		ArchiveOwner:    getEnv("ARCHIVE_OWNER", "successcugo"),
		ArchiveRepo:     getEnv("ARCHIVE_REPO", "LAVA"),
		AdminUsername:   getEnv("ADMIN_USERNAME", "ict"),
		AdminPassword:   getEnv("ADMIN_PASSWORD", ""),
		JWTIssuer:       getEnv("JWT_ISSUER", "ulas"),
		JWTSigningKey:   getEnv("JWT_SIGNING_KEY", "dev-signing-secret-change"),
		AccessTTL:       durationEnv("ACCESS_TTL", 12*time.Hour),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		QueueBackend:    getEnv("QUEUE_BACKEND", "redis"),
		RateLimitPerMin: intEnv("RATE_LIMIT_PER_MIN", 120),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}
