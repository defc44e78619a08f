package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/goccy/go-yaml"
	"github.com/hashicorp/go-multierror"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// Config is the service configuration read from the environment.
type Config struct {
	Mode     Mode   `env:"MODE" envDefault:"offline"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Calibration database, reachable from settings as the "db:" location.
	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"DB_DSN"`

	BlobDriver   string `env:"BLOB_DRIVER" envDefault:"fs"` // fs|minio
	BlobBasePath string `env:"BLOB_BASE_PATH" envDefault:"./data"`
	Minio        Minio  `envPrefix:"MINIO_"`

	AuthSecret    string `env:"AUTH_HMAC_SECRET" envDefault:"supersecret-dev-key"`
	AdminUser     string `env:"ADMIN_USER" envDefault:"admin"`
	AdminPassHash string `env:"ADMIN_PASS_HASH"` // bcrypt

	// Optional read-only account: computes weights, cannot publish calibrations.
	AnalystUser     string `env:"ANALYST_USER" envDefault:"analyst"`
	AnalystPassHash string `env:"ANALYST_PASS_HASH"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	SettingsFile string `env:"SETTINGS_FILE"`
	Settings     Settings
}

type Minio struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET" envDefault:"calibration"`
	UseSSL    bool   `env:"USE_SSL"`
}

// TableSettings locates one calibration object.
type TableSettings struct {
	File      string `yaml:"file" env:"FILE"`
	Histogram string `yaml:"histogram" env:"HISTOGRAM"`
	Variation string `yaml:"variation" env:"VARIATION"` // up|down, anything else is nominal
}

// Settings configure the scale factor producers.
type Settings struct {
	Channel   string   `yaml:"channel" env:"LEPTON_SF_CHANNEL"`
	EtaOnly   bool     `yaml:"eta_only" env:"LEPTON_SF_ETA_ONLY"`
	Producers []string `yaml:"producers" env:"LEPTON_SF_PRODUCERS" envSeparator:","`

	ID       TableSettings `yaml:"id" envPrefix:"LEPTON_ID_SF_"`
	Iso      TableSettings `yaml:"iso" envPrefix:"LEPTON_ISO_SF_"`
	Tracking TableSettings `yaml:"tracking" envPrefix:"LEPTON_TRACKING_SF_"`
	Trigger  TableSettings `yaml:"trigger" envPrefix:"LEPTON_TRIGGER_SF_"`
}

// ProducerNames lists the producers in the order they run.
var ProducerNames = []string{"id", "iso", "tracking", "trigger"}

func DefaultSettings() Settings {
	return Settings{
		Channel:   "mm",
		Producers: slices.Clone(ProducerNames),
	}
}

// Table returns the settings of the named producer.
func (s Settings) Table(producer string) (TableSettings, bool) {
	switch producer {
	case "id":
		return s.ID, true
	case "iso":
		return s.Iso, true
	case "tracking":
		return s.Tracking, true
	case "trigger":
		return s.Trigger, true
	default:
		return TableSettings{}, false
	}
}

// Validate reports every missing or unknown setting at once. The channel is
// checked by the producers themselves.
func (s Settings) Validate() error {
	var errs *multierror.Error
	if strings.TrimSpace(s.Channel) == "" {
		errs = multierror.Append(errs, errors.New("channel is required"))
	}
	if len(s.Producers) == 0 {
		errs = multierror.Append(errs, errors.New("at least one producer is required"))
	}
	seen := map[string]bool{}
	for _, p := range s.Producers {
		ts, ok := s.Table(p)
		if !ok {
			errs = multierror.Append(errs, fmt.Errorf("unknown producer %q", p))
			continue
		}
		if seen[p] {
			errs = multierror.Append(errs, fmt.Errorf("duplicate producer %q", p))
		}
		seen[p] = true
		if ts.File == "" {
			errs = multierror.Append(errs, fmt.Errorf("%s: calibration file is required", p))
		}
		if ts.Histogram == "" {
			errs = multierror.Append(errs, fmt.Errorf("%s: histogram name is required", p))
		}
	}
	return errs.ErrorOrNil()
}

// LoadSettings reads the optional YAML settings file over the defaults, then
// applies environment overrides.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("read settings: %w", err)
		}
		if err := yaml.Unmarshal(b, &s); err != nil {
			return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
		}
	}
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}

// FromEnv loads the service configuration and its producer settings.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	s, err := LoadSettings(cfg.SettingsFile)
	if err != nil {
		return Config{}, err
	}
	cfg.Settings = s
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs *multierror.Error
	switch c.Mode {
	case ModeOffline, ModeOnline:
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown mode %q", c.Mode))
	}
	switch c.BlobDriver {
	case "fs":
	case "minio":
		if c.Minio.Endpoint == "" {
			errs = multierror.Append(errs, errors.New("MINIO_ENDPOINT is required for the minio blob driver"))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown blob driver %q", c.BlobDriver))
	}
	if c.Mode == ModeOnline && c.AdminPassHash == "" {
		errs = multierror.Append(errs, errors.New("ADMIN_PASS_HASH is required online"))
	}
	if err := c.Settings.Validate(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}
