package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "", cfg.DataDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 30, cfg.Flow.OTPCountdown)
	assert.Equal(t, 300*time.Millisecond, cfg.Flow.CloseDelay)
	assert.Equal(t, 1500*time.Millisecond, cfg.Flow.SuccessDelay)
	assert.Equal(t, "127.0.0.1:8080", cfg.Mock.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Mock.OTPTTL)
	assert.True(t, cfg.Mock.EchoOTP)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		expected func(*Config)
	}{
		{
			name:    "base url override",
			envVars: map[string]string{"NAVAUTH_BASE_URL": "https://api.example.com"},
			expected: func(cfg *Config) {
				assert.Equal(t, "https://api.example.com", cfg.BaseURL)
			},
		},
		{
			name: "flow override",
			envVars: map[string]string{
				"NAVAUTH_FLOW_OTP_COUNTDOWN": "60",
				"NAVAUTH_FLOW_CLOSE_DELAY":   "1s",
			},
			expected: func(cfg *Config) {
				assert.Equal(t, 60, cfg.Flow.OTPCountdown)
				assert.Equal(t, time.Second, cfg.Flow.CloseDelay)
			},
		},
		{
			name: "mock override",
			envVars: map[string]string{
				"NAVAUTH_MOCK_ADDR":     ":9999",
				"NAVAUTH_MOCK_ECHO_OTP": "false",
			},
			expected: func(cfg *Config) {
				assert.Equal(t, ":9999", cfg.Mock.Addr)
				assert.False(t, cfg.Mock.EchoOTP)
			},
		},
		{
			name:    "unprefixed variables are ignored",
			envVars: map[string]string{"BASE_URL": "http://ignored"},
			expected: func(cfg *Config) {
				assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg, err := Load()
			require.NoError(t, err)
			tt.expected(cfg)
		})
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("NAVAUTH_REQUEST_TIMEOUT", "soon")
	_, err := Load()
	require.Error(t, err)
}

func TestLevel(t *testing.T) {
	cfg := &Config{LogLevel: "debug"}
	lvl, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	cfg.LogLevel = "loud"
	_, err = cfg.Level()
	require.Error(t, err)
}
