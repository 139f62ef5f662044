/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the hawala-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	JWKSURL              string `mapstructure:"JWKS_URL"`
	InternalAPIKey       string `mapstructure:"INTERNAL_API_KEY"`
	AllowedOrigins       string `mapstructure:"ALLOWED_ORIGINS"`

	FXPrimaryBaseURL string `mapstructure:"FX_PRIMARY_BASE_URL"`
	FXPrimaryAPIKey  string `mapstructure:"FX_PRIMARY_API_KEY"`
	FXBackupBaseURL  string `mapstructure:"FX_BACKUP_BASE_URL"`
	FXBackupAPIKey   string `mapstructure:"FX_BACKUP_API_KEY"`

	RateQuoteTTLSeconds    int    `mapstructure:"RATE_QUOTE_TTL_SECONDS"`
	RateCallTimeoutSeconds int    `mapstructure:"RATE_CALL_TIMEOUT_SECONDS"`
	RateRefreshSchedule    string `mapstructure:"RATE_REFRESH_SCHEDULE"`
	HotPairs               string `mapstructure:"HOT_PAIRS"`

	PublicRateLimitPerMinute int `mapstructure:"PUBLIC_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "hawala:rate_limit")
	viper.SetDefault("RATE_QUOTE_TTL_SECONDS", 300)
	viper.SetDefault("RATE_CALL_TIMEOUT_SECONDS", 5)
	viper.SetDefault("RATE_REFRESH_SCHEDULE", "@every 4m")
	viper.SetDefault("HOT_PAIRS", "USD-AFN,USD-PKR,EUR-AFN,AED-AFN")
	viper.SetDefault("PUBLIC_RATE_LIMIT_PER_MINUTE", 60)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "HAWALA_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "HAWALA_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("ALLOWED_ORIGINS")
	_ = viper.BindEnv("FX_PRIMARY_BASE_URL")
	_ = viper.BindEnv("FX_PRIMARY_API_KEY")
	_ = viper.BindEnv("FX_BACKUP_BASE_URL")
	_ = viper.BindEnv("FX_BACKUP_API_KEY")
	_ = viper.BindEnv("RATE_QUOTE_TTL_SECONDS")
	_ = viper.BindEnv("RATE_CALL_TIMEOUT_SECONDS")
	_ = viper.BindEnv("RATE_REFRESH_SCHEDULE")
	_ = viper.BindEnv("HOT_PAIRS")
	_ = viper.BindEnv("PUBLIC_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	// Platform runtimes commonly inject PORT; let it win over SERVER_PORT.
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("HAWALA_SERVICE_INTERNAL_API_KEY"))
	}

	if config.RateQuoteTTLSeconds <= 0 {
		config.RateQuoteTTLSeconds = 300
	}
	if config.RateCallTimeoutSeconds <= 0 {
		config.RateCallTimeoutSeconds = 5
	}
	if config.PublicRateLimitPerMinute < 0 {
		config.PublicRateLimitPerMinute = 0
	}

	return
}

// HotPairList splits the configured warm-up pairs ("USD-AFN,USD-PKR") into a
// slice, dropping empty entries.
func (c Config) HotPairList() []string {
	var pairs []string
	for _, raw := range strings.Split(c.HotPairs, ",") {
		if pair := strings.ToUpper(strings.TrimSpace(raw)); pair != "" {
			pairs = append(pairs, pair)
		}
	}
	return pairs
}

// OriginList splits ALLOWED_ORIGINS into a slice for the CORS middleware.
func (c Config) OriginList() []string {
	var origins []string
	for _, raw := range strings.Split(c.AllowedOrigins, ",") {
		if origin := strings.TrimSpace(raw); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
