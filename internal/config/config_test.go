package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Engine.Symbols = []string{"BTCUSDT"}
	cfg.Strategies = []StrategyConfig{{
		Name:    "alternator",
		Enabled: true,
		Symbols: []string{"BTCUSDT"},
		Params: StrategyParams{
			SignalIntervalSeconds: 900,
			Size:                  0.1,
		},
	}}
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "backtest"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateLiveModeRequiresCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "live"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")

	cfg.Exchange.BaseURL = "https://api.example.com"
	cfg.Exchange.ApiKey = "key"
	cfg.Exchange.ApiSecret = "secret"
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.Symbols = nil
	cfg.Risk.MaxDailyTrades = 0
	cfg.Strategies[0].Params.Size = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbols must not be empty")
	assert.Contains(t, err.Error(), "max_daily_trades")
	assert.Contains(t, err.Error(), "params.size")
}

func TestValidateRejectsNegativeStatusInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.StatusSeconds = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status_seconds")
}

func TestValidateRequiresEnabledStrategy(t *testing.T) {
	cfg := validConfig()
	cfg.Strategies[0].Enabled = false
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one enabled strategy")
}

func TestRiskForPrefersStrategyOverride(t *testing.T) {
	cfg := validConfig()
	cfg.Strategies[0].Risk = &RiskConfig{
		MaxPositionSize:  0.5,
		MaxDailyTrades:   3,
		MaxVolatilityPct: 2.0,
	}

	got := cfg.RiskFor("alternator")
	assert.Equal(t, 3, got.MaxDailyTrades)
	assert.Equal(t, 0.5, got.MaxPositionSize)

	// Unknown strategies fall back to the global limits.
	got = cfg.RiskFor("momentum")
	assert.Equal(t, cfg.Risk.MaxDailyTrades, got.MaxDailyTrades)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	raw := `
mode = "paper"

[engine]
symbols = ["BTCUSDT", "ETHUSDT"]
tick_interval_seconds = 3

[risk]
max_position_size = 2.5

[[strategies]]
name = "alternator"
enabled = true
symbols = ["BTCUSDT"]

[strategies.params]
signal_interval_seconds = 900
size = 0.1
`
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	t.Setenv("QUANTBOT_MODE", "live")
	t.Setenv("QUANTBOT_RISK_MAX_DAILY_TRADES", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	// File values override defaults.
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Engine.Symbols)
	assert.Equal(t, 3, cfg.Engine.TickIntervalSeconds)
	assert.Equal(t, 2.5, cfg.Risk.MaxPositionSize)

	// Env overrides beat the file.
	assert.Equal(t, "live", cfg.Mode)
	assert.Equal(t, 7, cfg.Risk.MaxDailyTrades)

	// Untouched defaults survive.
	assert.Equal(t, 5000, cfg.Exchange.RecvWindowMs)
	require.Len(t, cfg.Strategies, 1)
	assert.Equal(t, 900, cfg.Strategies[0].Params.SignalIntervalSeconds)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}
