package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60, cfg.Study.Window)
	assert.Equal(t, 90.0, cfg.Study.ThresholdPercentile)
	assert.Equal(t, 30, cfg.Study.HoldingPeriod)
	assert.Equal(t, "2005-01-01", cfg.Study.StartDate)
	assert.Equal(t, "2020-01-01", cfg.Study.TrainEndDate)
	assert.Equal(t, "overlapping", cfg.Study.TradeMode)
	assert.Equal(t, 20, cfg.Study.MinUniverse)
	assert.Equal(t, 3, cfg.Source.MaxRetries)

	require.NoError(t, cfg.validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "window too small",
			mutate:  func(c *Config) { c.Study.Window = 1 },
			wantErr: true,
		},
		{
			name:    "percentile out of range",
			mutate:  func(c *Config) { c.Study.ThresholdPercentile = 100 },
			wantErr: true,
		},
		{
			name:    "zero holding period",
			mutate:  func(c *Config) { c.Study.HoldingPeriod = 0 },
			wantErr: true,
		},
		{
			name:    "malformed start date",
			mutate:  func(c *Config) { c.Study.StartDate = "01/02/2005" },
			wantErr: true,
		},
		{
			name: "train end before start",
			mutate: func(c *Config) {
				c.Study.StartDate = "2020-01-01"
				c.Study.TrainEndDate = "2005-01-01"
			},
			wantErr: true,
		},
		{
			name:    "unknown trade mode",
			mutate:  func(c *Config) { c.Study.TradeMode = "martingale" },
			wantErr: true,
		},
		{
			name:    "invalid server port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid source URL",
			mutate:  func(c *Config) { c.Source.BaseURL = "not a url" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadFromFileOverlay(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	yamlContent := `
study:
  window: 90
  threshold_percentile: 85
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg := Default()
	require.NoError(t, loadFromFile(configPath, cfg))

	// File values win over defaults
	assert.Equal(t, 90, cfg.Study.Window)
	assert.Equal(t, 85.0, cfg.Study.ThresholdPercentile)
	assert.Equal(t, 9090, cfg.Server.Port)

	// Untouched fields keep defaults
	assert.Equal(t, 30, cfg.Study.HoldingPeriod)
	assert.Equal(t, "2005-01-01", cfg.Study.StartDate)
}

func TestLoadEnvPrecedence(t *testing.T) {
	t.Setenv("EMIS_STUDY_WINDOW", "120")
	t.Setenv("EMIS_STUDY_TRADE_MODE", "weekly")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 120, cfg.Study.Window)
	assert.Equal(t, "weekly", cfg.Study.TradeMode)
	// Defaults survive where no env var is set
	assert.Equal(t, 90.0, cfg.Study.ThresholdPercentile)
}

func TestStudyDates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.validate())

	assert.Equal(t, time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC), cfg.StudyStart())
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), cfg.TrainEnd())
	assert.True(t, cfg.TrainEnd().After(cfg.StudyStart()))
}
