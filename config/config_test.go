package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("IMAGE_STORAGE_MODE", " FILE ")
	t.Setenv("VERCEL", "1")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("GROOVESELL_WEBHOOK_SECRET", "gs-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, "gpt-image-1", cfg.OpenAI.Model)
	assert.Equal(t, "file", cfg.Images.StorageMode)
	assert.True(t, cfg.Images.PlatformManaged)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "generated-images", cfg.Images.OutputDir)
	require.NoError(t, cfg.Validate())
}

func TestValidateListsEveryMissingKey(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "firestore"
	cfg.Images.StorageMode = "s3"

	err := cfg.Validate()
	require.Error(t, err)
	for _, key := range []string{"OPENAI_API_KEY", "STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "S3_BUCKET", "FIRESTORE_PROJECT_ID", "GROOVESELL_WEBHOOK_SECRET"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "mongo"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongo")
}

func TestValidateAllowsUnsignedSalesWebhookWhenEnabled(t *testing.T) {
	cfg := &Config{}
	cfg.OpenAI.APIKey = "k"
	cfg.Stripe.SecretKey = "s"
	cfg.Stripe.WebhookKey = "w"
	cfg.Store.Driver = "memory"
	cfg.GrooveSell.AllowUnsigned = true
	require.NoError(t, cfg.Validate())
}
