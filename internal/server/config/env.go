package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// parseEnv overlays environment variables onto config. Unset, blank or
// unparsable values leave the current setting untouched.
//
//	APP_ENV, APP_NAME, LOG_LEVEL, HTTP_ADDR, GRPC_ADDR, DATABASE_URL,
//	JWT_ACCESS_SECRET, JWT_REFRESH_SECRET,
//	ACCESS_TOKEN_TTL_MINUTES, REFRESH_TOKEN_TTL_HOURS, LEGACY_AUTH_BYPASS,
//	RATE_LIMIT_MAX, RATE_LIMIT_WINDOW_SECONDS, RATE_LIMIT_MAX_KEYS, TRUSTED_PROXIES,
//	STATE_BACKEND, STATE_TABLE, S3_ROOT_USER, S3_ROOT_PASSWORD, S3_BUCKET,
//	S3_REGION, S3_BASE_ENDPOINT, SENTRY_DSN
func parseEnv(config *Config) {
	envString(&config.Mode, "APP_ENV")
	envString(&config.AppName, "APP_NAME")
	envString(&config.LogLevel, "LOG_LEVEL")
	envString(&config.EndpointAddrHTTP, "HTTP_ADDR")
	envString(&config.EndpointAddrGRPC, "GRPC_ADDR")
	envString(&config.DatabaseDSN, "DATABASE_URL")
	envString(&config.AccessSecret, "JWT_ACCESS_SECRET")
	envString(&config.RefreshSecret, "JWT_REFRESH_SECRET")
	envDuration(&config.AccessTokenValidityDuration, "ACCESS_TOKEN_TTL_MINUTES", time.Minute)
	envDuration(&config.RefreshTokenValidityDuration, "REFRESH_TOKEN_TTL_HOURS", time.Hour)
	envBool(&config.LegacyAuthBypass, "LEGACY_AUTH_BYPASS")
	envInt(&config.RateLimitMaxRequests, "RATE_LIMIT_MAX")
	envDuration(&config.RateLimitWindow, "RATE_LIMIT_WINDOW_SECONDS", time.Second)
	envInt(&config.RateLimitMaxKeys, "RATE_LIMIT_MAX_KEYS")
	envList(&config.TrustedProxies, "TRUSTED_PROXIES")
	envString(&config.StateBackend, "STATE_BACKEND")
	envString(&config.StateTable, "STATE_TABLE")
	envString(&config.S3RootUser, "S3_ROOT_USER")
	envString(&config.S3RootPassword, "S3_ROOT_PASSWORD")
	envString(&config.S3Bucket, "S3_BUCKET")
	envString(&config.S3Region, "S3_REGION")
	envString(&config.S3BaseEndpoint, "S3_BASE_ENDPOINT")
	envString(&config.SentryDSN, "SENTRY_DSN")
}

func envString(dst *string, name string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

// envList splits a comma-separated value, dropping blank items.
func envList(dst *[]string, name string) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

func envInt(dst *int, name string) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return
	}
	*dst = parsed
}

func envDuration(dst *time.Duration, name string, unit time.Duration) {
	n := 0
	envInt(&n, name)
	if n > 0 {
		*dst = time.Duration(n) * unit
	}
}

func envBool(dst *bool, name string) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return
	}
	if parsed, err := strconv.ParseBool(v); err == nil {
		*dst = parsed
	}
}
