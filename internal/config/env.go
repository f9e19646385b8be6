package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Env holds the environment-sourced application configuration.
type Env struct {
	// Strava API credentials (required)
	StravaClientID     string
	StravaClientSecret string

	// Optional analytics key; analytics stays off when empty
	PostHogAPIKey string

	AppVersion  string
	Environment string
}

// LoadEnv loads configuration from a .env file (when present) and the
// process environment.
func LoadEnv() (*Env, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("[Config] No .env file found, using system environment")
	}

	env := &Env{
		StravaClientID:     getEnv("STRAVA_CLIENT_ID", ""),
		StravaClientSecret: getEnv("STRAVA_CLIENT_SECRET", ""),
		PostHogAPIKey:      getEnv("POSTHOG_API_KEY", ""),
		AppVersion:         getEnv("APP_VERSION", "1.0.0"),
		Environment:        getEnv("APP_ENV", "development"),
	}

	if env.StravaClientID == "" {
		return nil, fmt.Errorf("STRAVA_CLIENT_ID is required")
	}
	if env.StravaClientSecret == "" {
		return nil, fmt.Errorf("STRAVA_CLIENT_SECRET is required")
	}

	log.Printf("[Config] Loaded configuration (env=%s version=%s client=%s)",
		env.Environment, env.AppVersion, maskString(env.StravaClientID))

	return env, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// maskString hides most of a sensitive value for logging.
func maskString(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
