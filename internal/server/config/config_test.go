package config

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/credport/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ModeDevelopment, c.Mode)
	assert.Equal(t, "gateway", c.AppName)
	assert.Equal(t, ":8080", c.EndpointAddrHTTP)
	assert.Equal(t, ":50051", c.EndpointAddrGRPC)
	assert.Equal(t, DefaultAccessSecret, c.AccessSecret)
	assert.Equal(t, DefaultRefreshSecret, c.RefreshSecret)
	assert.Equal(t, 15*time.Minute, c.AccessTokenValidityDuration)
	assert.Equal(t, 7*24*time.Hour, c.RefreshTokenValidityDuration)
	assert.False(t, c.LegacyAuthBypass)
	assert.Equal(t, 100, c.RateLimitMaxRequests)
	assert.Equal(t, time.Minute, c.RateLimitWindow)
	assert.Equal(t, 10000, c.RateLimitMaxKeys)
	assert.Equal(t, StateBackendPostgres, c.StateBackend)
	assert.Equal(t, "service_state", c.StateTable)
	assert.NoError(t, c.Validate())
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	c := LoadConfig()
	require.NotNil(t, c)

	assert.Equal(t, ":8080", c.EndpointAddrHTTP)
	assert.Equal(t, 15*time.Minute, c.AccessTokenValidityDuration)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults in development", mutate: func(c *Config) {}},
		{name: "defaults in production", mutate: func(c *Config) { c.Mode = "Production" }, wantErr: true},
		{name: "production with real secrets", mutate: func(c *Config) {
			c.Mode = ModeProduction
			c.AccessSecret = "a-very-long-access-secret"
			c.RefreshSecret = "a-very-long-refresh-secret"
		}},
		{name: "production missing refresh secret", mutate: func(c *Config) {
			c.Mode = ModeProduction
			c.AccessSecret = "a-very-long-access-secret"
			c.RefreshSecret = ""
		}, wantErr: true},
		{name: "same secrets", mutate: func(c *Config) { c.RefreshSecret = c.AccessSecret }, wantErr: true},
		{name: "zero ttl", mutate: func(c *Config) { c.AccessTokenValidityDuration = 0 }, wantErr: true},
		{name: "zero rate keys", mutate: func(c *Config) { c.RateLimitMaxKeys = 0 }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.StateBackend = "redis" }, wantErr: true},
		{name: "trusted proxies", mutate: func(c *Config) { c.TrustedProxies = []string{"10.0.0.0/8", "127.0.0.1"} }},
		{name: "bad trusted proxy", mutate: func(c *Config) { c.TrustedProxies = []string{"lb.internal"} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			c.LoadDefaults()
			tt.mutate(&c)
			err := c.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrConfiguration))
		})
	}
}

func TestLegacyAuthBypassAllowed(t *testing.T) {
	c := &Config{LegacyAuthBypass: true, Mode: ModeDevelopment}
	assert.True(t, c.LegacyAuthBypassAllowed())

	c.Mode = ModeProduction
	assert.False(t, c.LegacyAuthBypassAllowed(), "bypass must never be reachable in production")

	c.Mode = ModeDevelopment
	c.LegacyAuthBypass = false
	assert.False(t, c.LegacyAuthBypassAllowed())
}
