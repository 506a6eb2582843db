package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/credport/internal/flagx"
	"github.com/dmitrijs2005/credport/internal/timex"
)

// JsonConfig is the on-disk shape of a config file. Durations accept both
// "15m" and integer nanoseconds via timex.Duration. Pointer fields
// distinguish "absent" from the zero value.
type JsonConfig struct {
	Mode                         string          `json:"mode"`
	AppName                      string          `json:"app_name"`
	LogLevel                     string          `json:"log_level"`
	EndpointAddrHTTP             string          `json:"endpoint_addr_http"`
	EndpointAddrGRPC             string          `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string          `json:"database_dsn"`
	AccessSecret                 string          `json:"access_secret"`
	RefreshSecret                string          `json:"refresh_secret"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	LegacyAuthBypass             *bool           `json:"legacy_auth_bypass"`
	RateLimitMaxRequests         int             `json:"rate_limit_max_requests"`
	RateLimitWindow              *timex.Duration `json:"rate_limit_window"`
	RateLimitMaxKeys             int             `json:"rate_limit_max_keys"`
	TrustedProxies               []string        `json:"trusted_proxies"`
	StateBackend                 string          `json:"state_backend"`
	StateTable                   string          `json:"state_table"`
	S3RootUser                   string          `json:"s3_root_user"`
	S3RootPassword               string          `json:"s3_root_password"`
	S3Bucket                     string          `json:"s3_bucket"`
	S3Region                     string          `json:"s3_region"`
	S3BaseEndpoint               string          `json:"s3_base_endpoint"`
	SentryDSN                    string          `json:"sentry_dsn"`
}

// parseJson overlays values from the file named by -c/-config onto config.
// Fields missing from the file keep their current value. An unreadable
// file or invalid JSON panics: a broken config must stop startup.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.Mode, c.Mode)
	setString(&config.AppName, c.AppName)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.AccessSecret, c.AccessSecret)
	setString(&config.RefreshSecret, c.RefreshSecret)
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.LegacyAuthBypass != nil {
		config.LegacyAuthBypass = *c.LegacyAuthBypass
	}
	if c.RateLimitMaxRequests > 0 {
		config.RateLimitMaxRequests = c.RateLimitMaxRequests
	}
	if c.RateLimitWindow != nil {
		config.RateLimitWindow = c.RateLimitWindow.Duration
	}
	if c.RateLimitMaxKeys > 0 {
		config.RateLimitMaxKeys = c.RateLimitMaxKeys
	}
	if len(c.TrustedProxies) > 0 {
		config.TrustedProxies = c.TrustedProxies
	}
	setString(&config.StateBackend, c.StateBackend)
	setString(&config.StateTable, c.StateTable)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.SentryDSN, c.SentryDSN)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
