package config

import (
	"os"
	"strings"
)

// Environment names
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// GetEnv returns the value of an environment variable or defaultValue when unset.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvironment returns the lower-cased AVIVAGO_SERVER_ENVIRONMENT, defaulting to development.
func GetEnvironment() string {
	return strings.ToLower(GetEnv("AVIVAGO_SERVER_ENVIRONMENT", EnvDevelopment))
}

// IsDevelopment returns true if running in development.
func IsDevelopment() bool {
	return GetEnvironment() == EnvDevelopment
}

// IsProductionLike returns true in staging or production.
func IsProductionLike() bool {
	env := GetEnvironment()
	return env == EnvStaging || env == EnvProduction
}
