// Package config handles loading, defaulting, and validation of the photometry
// kit TOML configuration file. Every section maps to a typed struct so the rest
// of the codebase gets strong typing without manual key lookups.
package config

import (
	"errors"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Logging    LoggingConfig    `toml:"logging"    json:"logging"`
	Server     ServerConfig     `toml:"server"     json:"server"`
	Simbad     SimbadConfig     `toml:"simbad"     json:"simbad"`
	Gaia       GaiaConfig       `toml:"gaia"       json:"gaia"`
	Image      ImageConfig      `toml:"image"      json:"image"`
	Instrument InstrumentConfig `toml:"instrument" json:"instrument"`
}

type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
}

type ServerConfig struct {
	Bind string `toml:"bind" json:"bind"`
}

// SimbadConfig points at the SIMBAD TAP service used for name resolution.
type SimbadConfig struct {
	URL            string `toml:"url"             json:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds" json:"timeout_seconds"`
}

// GaiaConfig points at the Gaia archive TAP service. Jobs have no deadline
// of their own; PollIntervalMS is only the starting interval between phase
// checks and is doubled up to MaxPollIntervalMS.
type GaiaConfig struct {
	URL               string `toml:"url"                  json:"url"`
	PollIntervalMS    int    `toml:"poll_interval_ms"     json:"poll_interval_ms"`
	MaxPollIntervalMS int    `toml:"max_poll_interval_ms" json:"max_poll_interval_ms"`
}

type ImageConfig struct {
	Offset     float64 `toml:"offset"      json:"offset"`
	OutputName string  `toml:"output_name" json:"output_name"`
}

// InstrumentConfig holds the telescope and camera constants of the noise
// model. Units are noted per field.
type InstrumentConfig struct {
	Name              string  `toml:"name"                json:"name"`
	PlateScale        float64 `toml:"plate_scale"         json:"plate_scale"`         // arcsec/pixel
	Gain              float64 `toml:"gain"                json:"gain"`                // e-/ADU
	ReadNoise         float64 `toml:"read_noise"          json:"read_noise"`          // e-
	DarkCurrent       float64 `toml:"dark_current"        json:"dark_current"`        // e-/pixel/s
	SkyLow            float64 `toml:"sky_low"             json:"sky_low"`             // e-/arcsec^2/s
	SkyMedium         float64 `toml:"sky_medium"          json:"sky_medium"`          // e-/arcsec^2/s
	SkyHigh           float64 `toml:"sky_high"            json:"sky_high"`            // e-/arcsec^2/s
	TelescopeAperture float64 `toml:"telescope_aperture"  json:"telescope_aperture"`  // m
	ScaleHeight       float64 `toml:"scale_height"        json:"scale_height"`        // m
	ScintillationCoef float64 `toml:"scintillation_coef"  json:"scintillation_coef"`  // m^(2/3) s^(1/2)
	ObservatoryHeight float64 `toml:"observatory_height"  json:"observatory_height"`  // m
	ZeroPointLarge    float64 `toml:"zero_point_large"    json:"zero_point_large"`    // mag, 20 px aperture
	ZeroPointMedium   float64 `toml:"zero_point_medium"   json:"zero_point_medium"`   // mag, 10 px aperture
	ZeroPointSmall    float64 `toml:"zero_point_small"    json:"zero_point_small"`    // mag, 5 px aperture
	ReadoutTime       float64 `toml:"readout_time"        json:"readout_time"`        // s
}

// Default returns a Config populated with sane defaults. Values here are
// used whenever the TOML file omits a field.
func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Bind: "127.0.0.1:8090",
		},
		Simbad: SimbadConfig{
			URL:            "https://simbad.cds.unistra.fr/simbad/sim-tap",
			TimeoutSeconds: 60,
		},
		Gaia: GaiaConfig{
			URL:               "https://gea.esac.esa.int/tap-server/tap",
			PollIntervalMS:    500,
			MaxPollIntervalMS: 5000,
		},
		Image: ImageConfig{
			Offset:     100,
			OutputName: "const_added.fits",
		},
		Instrument: InstrumentConfig{
			Name:              "w1m",
			PlateScale:        0.778,
			Gain:              1.055,
			ReadNoise:         12.96,
			DarkCurrent:       0.0243,
			SkyLow:            16,
			SkyMedium:         100,
			SkyHigh:           300,
			TelescopeAperture: 1,
			ScaleHeight:       8000,
			ScintillationCoef: 1.3,
			ObservatoryHeight: 2396,
			ZeroPointLarge:    24.3,
			ZeroPointMedium:   24,
			ZeroPointSmall:    23.7,
			ReadoutTime:       0.993,
		},
	}
}

// Load reads the TOML file at path, layers it on top of the defaults, and
// validates the result. An empty path yields the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, validate(cfg)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Simbad.URL == "" {
		return errors.New("simbad.url must not be empty")
	}
	if cfg.Simbad.TimeoutSeconds < 1 {
		return errors.New("simbad.timeout_seconds must be >= 1")
	}
	if cfg.Gaia.URL == "" {
		return errors.New("gaia.url must not be empty")
	}
	if cfg.Gaia.PollIntervalMS < 1 {
		return errors.New("gaia.poll_interval_ms must be >= 1")
	}
	if cfg.Gaia.MaxPollIntervalMS < cfg.Gaia.PollIntervalMS {
		return errors.New("gaia.max_poll_interval_ms must be >= gaia.poll_interval_ms")
	}
	if cfg.Image.OutputName == "" {
		return errors.New("image.output_name must not be empty")
	}
	if cfg.Instrument.PlateScale <= 0 {
		return errors.New("instrument.plate_scale must be > 0")
	}
	if cfg.Instrument.TelescopeAperture <= 0 {
		return errors.New("instrument.telescope_aperture must be > 0")
	}
	if cfg.Instrument.ScaleHeight <= 0 {
		return errors.New("instrument.scale_height must be > 0")
	}
	return nil
}
