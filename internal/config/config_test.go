package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "PORT")
	unsetEnvWithCleanup(t, "RATE_QUOTE_TTL_SECONDS")
	unsetEnvWithCleanup(t, "RATE_REFRESH_SCHEDULE")
	unsetEnvWithCleanup(t, "PUBLIC_RATE_LIMIT_PER_MINUTE")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.RateQuoteTTLSeconds != 300 {
		t.Fatalf("expected default quote TTL 300s, got %d", cfg.RateQuoteTTLSeconds)
	}
	if cfg.RateRefreshSchedule != "@every 4m" {
		t.Fatalf("expected default refresh schedule, got %q", cfg.RateRefreshSchedule)
	}
	if cfg.PublicRateLimitPerMinute != 60 {
		t.Fatalf("expected default public rate limit 60, got %d", cfg.PublicRateLimitPerMinute)
	}
}

func TestLoadConfig_UsesHawalaServiceInternalAPIKeyAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "INTERNAL_API_KEY")
	setEnvWithCleanup(t, "HAWALA_SERVICE_INTERNAL_API_KEY", "alias-only-key")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.InternalAPIKey != "alias-only-key" {
		t.Fatalf("expected InternalAPIKey from alias env var, got %q", cfg.InternalAPIKey)
	}
}

func TestLoadConfig_InternalAPIKeyTakesPrecedenceOverAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "INTERNAL_API_KEY", "primary-key")
	setEnvWithCleanup(t, "HAWALA_SERVICE_INTERNAL_API_KEY", "alias-key")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.InternalAPIKey != "primary-key" {
		t.Fatalf("expected InternalAPIKey to prioritize INTERNAL_API_KEY, got %q", cfg.InternalAPIKey)
	}
}

func TestLoadConfig_PortEnvOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9090")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_NonPositiveRateSettingsFallBack(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "RATE_QUOTE_TTL_SECONDS", "-10")
	setEnvWithCleanup(t, "RATE_CALL_TIMEOUT_SECONDS", "0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.RateQuoteTTLSeconds != 300 {
		t.Fatalf("expected quote TTL fallback 300s, got %d", cfg.RateQuoteTTLSeconds)
	}
	if cfg.RateCallTimeoutSeconds != 5 {
		t.Fatalf("expected call timeout fallback 5s, got %d", cfg.RateCallTimeoutSeconds)
	}
}

func TestHotPairList_SplitsAndNormalizes(t *testing.T) {
	cfg := Config{HotPairs: " usd-afn , USD-PKR ,, "}

	pairs := cfg.HotPairList()
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %v", pairs)
	}
	if pairs[0] != "USD-AFN" || pairs[1] != "USD-PKR" {
		t.Fatalf("expected normalized pairs, got %v", pairs)
	}
}

func TestOriginList_SplitsOrigins(t *testing.T) {
	cfg := Config{AllowedOrigins: "https://dashboard.example.com, https://ops.example.com"}

	origins := cfg.OriginList()
	if len(origins) != 2 {
		t.Fatalf("expected 2 origins, got %v", origins)
	}
	if origins[1] != "https://ops.example.com" {
		t.Fatalf("expected trimmed origin, got %q", origins[1])
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
