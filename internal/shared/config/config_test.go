package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "http://localhost:8080", cfg.Server.PublicURL)
	assert.Equal(t, "X-BOGLEPAY-SIGNATURE", cfg.BoglePay.SignatureHeader)
	assert.Equal(t, "https://checkout.example.com", cfg.BoglePay.HostedCheckoutURL)
	assert.True(t, cfg.BoglePay.SandboxMode)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BOGLEPAY_API_KEY", "sk_live_env")
	t.Setenv("BOGLEPAY_WEBHOOK_SECRET", "whsec_env")
	t.Setenv("BOGLEPAY_DB_PASSWORD", "db_pass")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk_live_env", cfg.BoglePay.APIKey)
	assert.Equal(t, "whsec_env", cfg.BoglePay.WebhookSecret)
	assert.Equal(t, "db_pass", cfg.Database.Password)
}
