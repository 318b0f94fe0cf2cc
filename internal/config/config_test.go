package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("BOH_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.AppPort)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, 24*time.Hour, cfg.TokenTTL)
	require.Equal(t, 20*time.Second, cfg.AssistantTimeout)
	require.Equal(t, 25, cfg.UploadMaxSizeMB)
	require.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	require.Equal(t, "boh", cfg.RealtimeChannelBase)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("BOH_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("BOH_JWT_SECRET", "secret")
	t.Setenv("BOH_ASSISTANT_TIMEOUT", "soon")

	_, err := Load()
	require.ErrorContains(t, err, "assistant.timeout")
}

func TestHTTPAddressKeepsColonPrefix(t *testing.T) {
	cfg := Config{AppPort: ":9090"}
	require.Equal(t, ":9090", cfg.HTTPAddress())
}
