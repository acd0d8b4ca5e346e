package strategyconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-t0/internal/contracts"
)

func TestLoad(t *testing.T) {
	path := "../../config/strategy/t0_rotation.yaml"

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skip("config file not found")
	}

	cfg, yamlData, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Meta.StrategyID != "t0_rotation" {
		t.Errorf("expected strategy_id=t0_rotation, got %s", cfg.Meta.StrategyID)
	}
	if cfg.Backtest.SlippageBps != 5 {
		t.Errorf("expected slippage_bps=5, got %v", cfg.Backtest.SlippageBps)
	}
	if len(cfg.T0.Windows) != 4 {
		t.Errorf("expected 4 windows, got %d", len(cfg.T0.Windows))
	}

	hash, err := Hash(cfg)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if len(hash) != 64 {
		t.Errorf("expected 64 char hash, got %d", len(hash))
	}

	// same config → same hash
	hash2, _ := Hash(cfg)
	if hash != hash2 {
		t.Error("hash not deterministic")
	}

	t.Logf("config hash: %s", hash)
	t.Logf("yaml size: %d bytes", len(yamlData))
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Validate(Default()))
	assert.InDelta(t, 1.0, Default().Factors.Weights.Sum(), 1e-12)
}

func TestParse_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("t0:\n  max_t0_ratio: 0.5\n"))
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.T0.MaxT0Ratio)
	assert.Equal(t, 1.03, cfg.T0.SpikeRatio)
	assert.Equal(t, int64(100), cfg.Risk.LotSize)
}

func TestParse_UnknownFieldRejected(t *testing.T) {
	_, err := Parse([]byte("t0:\n  spike_ration: 1.04\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrConfiguration)
}

func TestValidateWeights(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		wantErr bool
	}{
		{"defaults", Default().Factors.Weights, false},
		{"sum 0.9", Weights{Momentum: 0.25, Technical: 0.25, VolumePrice: 0.10, CapitalFlow: 0.15, Sentiment: 0.15}, true},
		{"sum 1.1", Weights{Momentum: 0.35, Technical: 0.25, VolumePrice: 0.20, CapitalFlow: 0.15, Sentiment: 0.15}, true},
		{"negative", Weights{Momentum: 1.25, Technical: -0.25}, true},
		{"single category", Weights{Momentum: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWeights(tt.weights)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, contracts.ErrConfiguration))

			var ve ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Contains(t, ve.Field, "factors.weights")
		})
	}
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"normalization", func(c *Config) { c.Factors.Normalization = "minmax" }, "factors.normalization"},
		{"short >= long", func(c *Config) { c.Factors.ShortLookback = 20 }, "factors"},
		{"macd fast >= slow", func(c *Config) { c.Factors.MACD.Fast = 30 }, "factors.macd"},
		{"kelly > 1", func(c *Config) { c.Risk.KellyFraction = 1.5 }, "risk.kelly_fraction"},
		{"max position 0", func(c *Config) { c.Risk.MaxPositionFraction = 0 }, "risk.max_position_fraction"},
		{"negative threshold", func(c *Config) { c.T0.PullbackRatio = -0.97 }, "t0.pullback_ratio"},
		{"black swan 0", func(c *Config) { c.Risk.BlackSwanMove = 0 }, "risk.black_swan_move"},
		{"lot size 0", func(c *Config) { c.Risk.LotSize = 0 }, "risk.lot_size"},
		{"window reversed", func(c *Config) { c.T0.Windows[0].End = "09:00" }, "t0.windows[0]"},
		{"force rebuy format", func(c *Config) { c.T0.ForceRebuyAt = "2:50pm" }, "t0.force_rebuy_at"},
		{"initial equity", func(c *Config) { c.Backtest.InitialEquity = 0 }, "backtest.initial_equity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			var ve ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestWarn(t *testing.T) {
	cfg := Default()
	cfg.T0.FadeRatio = 1.0

	codes := map[string]bool{}
	for _, w := range Warn(cfg) {
		codes[w.Code] = true
	}
	assert.True(t, codes["FULL_ROTATION"])
	assert.True(t, codes["ZERO_COST"])
	assert.True(t, codes["FADE_UNBOUNDED"])
	assert.False(t, codes["SECTOR_BELOW_NAME"])
}

func TestRunSnapshot(t *testing.T) {
	cfg := Default()
	yamlData := []byte("test yaml content")

	snapshot, err := NewRunSnapshot(cfg, yamlData)
	require.NoError(t, err)

	assert.Equal(t, "t0_rotation", snapshot.StrategyID)
	assert.Len(t, snapshot.ConfigHash, 64)
	assert.Equal(t, "test yaml content", snapshot.ConfigYAML)
}

func TestHash_ChangesWithConfig(t *testing.T) {
	a, err := Hash(Default())
	require.NoError(t, err)

	cfg := Default()
	cfg.T0.PullbackRatio = 0.96
	b, err := Hash(cfg)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestLoadOrDefault(t *testing.T) {
	cfg, data, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	// the rendered defaults must load back to the same config
	path := filepath.Join(t.TempDir(), "strategy.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	loaded, _, err := LoadOrDefault(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestT0_WindowAt(t *testing.T) {
	t0 := Default().T0
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		at   time.Duration
		want string
	}{
		{9*time.Hour + 30*time.Minute, "open"},
		{10 * time.Hour, "morning"},
		{12 * time.Hour, ""},
		{14*time.Hour + 45*time.Minute, "close"},
		{15 * time.Hour, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, t0.WindowAt(day.Add(tt.at)), "at %s", tt.at)
	}

	_, enabled := t0.ForceRebuyMinute()
	assert.False(t, enabled)
	t0.ForceRebuyAt = "14:50"
	m, enabled := t0.ForceRebuyMinute()
	assert.True(t, enabled)
	assert.Equal(t, 14*60+50, m)
}

func TestValidateHHMM(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"09:00", true},
		{"15:30", true},
		{"23:59", true},
		{"9:00", false},
		{"25:00", false},
		{"09:60", false},
		{"invalid", false},
	}

	for _, tc := range tests {
		err := validateHHMM(tc.input)
		if tc.valid && err != nil {
			t.Errorf("validateHHMM(%s) expected valid, got error: %v", tc.input, err)
		}
		if !tc.valid && err == nil {
			t.Errorf("validateHHMM(%s) expected error, got nil", tc.input)
		}
	}
}
