package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env             string
	HTTPPort        string
	MetricsPort     string
	AuthURL         string
	GradesURL       string
	DirectorURL     string
	RequestTimeout  time.Duration
	DemoMode        bool
	EchoCode        bool
	SessionBackend  string
	SessionTTL      time.Duration
	RedisAddr       string
	QueueBackend    string
	JWTIssuer       string
	JWTSigningKey   string
	RateLimitPerMin int
	RollbarToken    string
	Build           string
}

// Load returns application config populated from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present; real environment
// variables take precedence over it.
func Load() App {
	loadDotEnv(".env")

	env := getEnv("APP_ENV", "dev")
	return App{
		Env:             env,
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		MetricsPort:     getEnv("METRICS_PORT", "9091"),
		AuthURL:         getEnv("AUTH_URL", "http://localhost:8000/auth"),
		GradesURL:       getEnv("GRADES_URL", "http://localhost:8000/grades"),
		DirectorURL:     getEnv("DIRECTOR_URL", "http://localhost:8000/director"),
		RequestTimeout:  durationEnv("REQUEST_TIMEOUT", 15*time.Second),
		DemoMode:        boolEnv("DEMO_MODE", !IsProduction(env)),
		EchoCode:        boolEnv("ECHO_CODE", !IsProduction(env)),
		SessionBackend:  getEnv("SESSION_BACKEND", "memory"),
		SessionTTL:      durationEnv("SESSION_TTL", 12*time.Hour),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		QueueBackend:    getEnv("QUEUE_BACKEND", "memory"),
		JWTIssuer:       getEnv("JWT_ISSUER", "diary-web"),
		JWTSigningKey:   getEnv("JWT_SIGNING_KEY", "dev-signing-secret-change"),
		RateLimitPerMin: intEnv("RATE_LIMIT_PER_MIN", 60),
		RollbarToken:    getEnv("ROLLBAR_TOKEN", ""),
		Build:           getEnv("BUILD", "dev"),
	}
}

// IsProduction reports whether env names a production deployment.
func IsProduction(env string) bool {
	return env == "production" || env == "prod"
}

func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("config: stat %s: %v", path, err)
		}
		return
	}
	if err := godotenv.Load(path); err != nil {
		log.Printf("config: load %s: %v", path, err)
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

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if val == "1" || val == "true" || val == "TRUE" {
			return true
		}
		if val == "0" || val == "false" || val == "FALSE" {
			return false
		}
		log.Printf("invalid bool for %s, using fallback %v", key, fallback)
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
