package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("SOLANA_ADDRESS", "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.mainnet-beta.solana.com", cfg.Solana.RPCURL)
	assert.Equal(t, "https://api.helius.xyz/v0", cfg.Solana.HeliusURL)
	assert.Equal(t, 30*time.Second, cfg.Monitor.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.Monitor.AutoTransferDelay)
	assert.Equal(t, 30*time.Minute, cfg.Monitor.PendingMaxAge)
	assert.Equal(t, 0.95, cfg.Monitor.AutoTransferRatio)
	assert.Equal(t, 0.001, cfg.Monitor.DustThreshold)
	assert.Equal(t, 6*time.Hour, cfg.Health.BroadcastInterval)
	assert.Equal(t, 5*time.Minute, cfg.Pricing.RefreshInterval)
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, "users.json", cfg.Store.DataFile)
}

func TestLoad_LegacyEnvNames(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GROUP_ID", "-100200300")
	t.Setenv("ADMIN_IDS", "11, 22,33")
	t.Setenv("DATA_FILE", "/tmp/operatives.json")
	t.Setenv("NODE_ENV", "staging")
	t.Setenv("HELIUS_API_KEY", "helius-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
	assert.Equal(t, int64(-100200300), cfg.Telegram.GroupID)
	assert.Equal(t, []int64{11, 22, 33}, cfg.Telegram.AdminIDs)
	assert.Equal(t, "/tmp/operatives.json", cfg.Store.DataFile)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "helius-key", cfg.Solana.HeliusAPIKey)
}

func TestLoad_MissingBotToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("SOLANA_ADDRESS", "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BotToken")
}

func TestLoad_InvalidGroupID(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GROUP_ID", "not-a-number")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GROUP_ID")
}

func TestLoad_SendGridKeyEnablesProvider(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SENDGRID_API_KEY", "sg-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sendgrid", cfg.Email.Provider)
	assert.Equal(t, "sg-key", cfg.Email.APIKey)
}

func TestParseIDList(t *testing.T) {
	ids, err := ParseIDList(" 1,2 ,,3")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	_, err = ParseIDList("1,x")
	assert.Error(t, err)
}
