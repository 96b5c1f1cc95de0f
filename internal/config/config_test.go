package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "log:\n  level: debug\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "ICN", cfg.Search.Origin)
	require.Equal(t, "HNL", cfg.Search.Destination)
	require.Equal(t, 2, cfg.Search.Adults)
	require.True(t, cfg.Search.NonStopOnly)
	require.Equal(t, "KRW", cfg.Search.Currency)
	require.Equal(t, 1500000.0, cfg.Criteria.MaxPriceTotal)
	require.Zero(t, cfg.Criteria.MaxPricePerPerson)
	require.Equal(t, 3, cfg.Confirm.Attempts)
	require.Equal(t, 2*time.Second, cfg.Confirm.Backoff)
	require.Equal(t, 5, cfg.Confirm.MaxOffers)
	require.Equal(t, 30*time.Second, cfg.Amadeus.Timeout)
	require.Equal(t, 30*time.Minute, cfg.Notify.CheckInterval)
	require.Equal(t, 5, cfg.Notify.TopN)
	require.False(t, cfg.Notify.OnEmpty)
	require.False(t, cfg.Notify.OnSearchFailure)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
search:
  origin: gmp
  destination: kix
  adults: 1
criteria:
  max_price_total: 3000000
  max_price_per_person: 2000000
confirm:
  enabled: true
  backoff: 5s
  max_offers: 0
`)
	t.Setenv("AMADEUS_API_KEY", "legacy-id")
	t.Setenv("AMADEUS_API_SECRET", "legacy-secret")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "-100200")
	t.Setenv("SEARCH_CURRENCY", "usd")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "GMP", cfg.Search.Origin)
	require.Equal(t, "KIX", cfg.Search.Destination)
	require.Equal(t, 1, cfg.Search.Adults)
	require.Equal(t, "USD", cfg.Search.Currency)
	require.Equal(t, 3000000.0, cfg.Criteria.MaxPriceTotal)
	require.Equal(t, 2000000.0, cfg.Criteria.MaxPricePerPerson)
	require.True(t, cfg.Confirm.Enabled)
	require.Equal(t, 5*time.Second, cfg.Confirm.Backoff)
	require.Zero(t, cfg.Confirm.MaxOffers)
	require.Equal(t, "legacy-id", cfg.Amadeus.ClientID)
	require.Equal(t, "legacy-secret", cfg.Amadeus.ClientSecret)
	require.Equal(t, "123:abc", cfg.Telegram.Token)
	require.Equal(t, "-100200", cfg.Telegram.ChatID)
	require.NoError(t, cfg.Validate())
}

func TestLoadBadDuration(t *testing.T) {
	path := writeConfig(t, "confirm:\n  backoff: soon\n")
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "confirm.backoff")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateMissingCredentials(t *testing.T) {
	for _, key := range []string{
		"AMADEUS_CLIENT_ID", "AMADEUS_API_KEY", "AMADEUS_CLIENT_SECRET", "AMADEUS_API_SECRET",
		"TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID",
	} {
		t.Setenv(key, "")
	}
	path := writeConfig(t, "search:\n  adults: 0\n  return_date: \"2025-10-01\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"amadeus.client_id is required",
		"amadeus.client_secret is required",
		"telegram.token is required",
		"telegram.chat_id is required",
		"search.adults must be between 1 and 9",
		"search.return_date is before search.departure_date",
	} {
		require.Contains(t, err.Error(), want)
	}
}
