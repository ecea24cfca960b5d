package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 60, cfg.Simbad.TimeoutSeconds)
	assert.Equal(t, 100.0, cfg.Image.Offset)
	assert.Equal(t, "const_added.fits", cfg.Image.OutputName)
	assert.Equal(t, 0.778, cfg.Instrument.PlateScale)
	assert.Equal(t, 0.993, cfg.Instrument.ReadoutTime)
	assert.NoError(t, validate(cfg))
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_LayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photometry.toml")
	data := `
[simbad]
timeout_seconds = 10

[instrument]
name = "binned"
plate_scale = 0.788
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Simbad.TimeoutSeconds)
	assert.Equal(t, "binned", cfg.Instrument.Name)
	assert.Equal(t, 0.788, cfg.Instrument.PlateScale)
	// Untouched fields keep their defaults.
	assert.Equal(t, Default().Simbad.URL, cfg.Simbad.URL)
	assert.Equal(t, 12.96, cfg.Instrument.ReadNoise)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_BadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[simbad\nurl = "), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty simbad url", func(c *Config) { c.Simbad.URL = "" }, "simbad.url"},
		{"zero timeout", func(c *Config) { c.Simbad.TimeoutSeconds = 0 }, "simbad.timeout_seconds"},
		{"empty gaia url", func(c *Config) { c.Gaia.URL = "" }, "gaia.url"},
		{"zero poll", func(c *Config) { c.Gaia.PollIntervalMS = 0 }, "gaia.poll_interval_ms"},
		{"max below poll", func(c *Config) { c.Gaia.MaxPollIntervalMS = 10 }, "gaia.max_poll_interval_ms"},
		{"empty output name", func(c *Config) { c.Image.OutputName = "" }, "image.output_name"},
		{"zero plate scale", func(c *Config) { c.Instrument.PlateScale = 0 }, "instrument.plate_scale"},
		{"zero aperture", func(c *Config) { c.Instrument.TelescopeAperture = 0 }, "instrument.telescope_aperture"},
		{"zero scale height", func(c *Config) { c.Instrument.ScaleHeight = 0 }, "instrument.scale_height"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
