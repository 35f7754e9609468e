package cfg

import (
	"cmp"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Application configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	DBPath       string `long:"db-path" env:"DB_PATH" default:"./vril.db" description:"Path to the sqlite database file"`
	MediaDir     string `long:"media-dir" env:"MEDIA_DIR" default:"./media" description:"Directory for downloaded poster/backdrop images"`
	SettingsFile string `long:"settings-file" env:"SETTINGS_FILE" default:"./settings.yml" description:"YAML file with API keys and auth credentials"`

	// Upstream access
	TMDbAPIKey   string `long:"tmdb-api-key" env:"TMDB_API_KEY" description:"TMDb API key (overrides settings file)"`
	TinifyAPIKey string `long:"tinify-api-key" env:"TINIFY_API_KEY" description:"Tinify API key (overrides settings file)"`
	HTTPTimeout  int    `long:"http-timeout" env:"HTTP_TIMEOUT" default:"15" description:"Timeout in seconds for outbound HTTP requests"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Vril/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging and response timing"`
}

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		Port:         raw.Port,
		DBPath:       raw.DBPath,
		MediaDir:     raw.MediaDir,
		SettingsFile: raw.SettingsFile,
		TMDbAPIKey:   raw.TMDbAPIKey,
		TinifyAPIKey: raw.TinifyAPIKey,
		HTTPTimeout:  raw.HTTPTimeout,
		UserAgent:    raw.UserAgent,
		Timezone:     raw.Timezone,
		Debug:        raw.Debug,
		Version:      GetVersion(),
	}

	settings, err := loadSettings(cfg.SettingsFile)
	if err != nil {
		return nil, err
	}
	if settings != nil {
		applySettings(cfg, settings)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

// loadSettings reads the optional YAML settings file. A missing file is not
// an error; a malformed one is.
func loadSettings(path string) (*Settings, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}

	return &settings, nil
}

// applySettings merges file values into the config. Flags and environment
// variables win over the settings file.
func applySettings(cfg *Cfg, settings *Settings) {
	cfg.TMDbAPIKey = cmp.Or(cfg.TMDbAPIKey, settings.TMDbAPIKey)
	cfg.TinifyAPIKey = cmp.Or(cfg.TinifyAPIKey, settings.TinifyAPIKey)

	cfg.AuthUsername = settings.Auth.Username
	cfg.AuthAppPasswordHash = settings.Auth.AppPasswordHash
	cfg.AuthSecret = settings.Auth.Secret
	cfg.TokenTTLHours = settings.Auth.TokenTTLHours
	if cfg.TokenTTLHours == 0 {
		cfg.TokenTTLHours = 24 * 30
	}
}

func validate(cfg *Cfg) error {
	if cfg.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive, got %d", cfg.HTTPTimeout)
	}

	// Write endpoints are disabled without credentials; only a partial auth
	// block is a configuration mistake worth failing on.
	hasAny := cfg.AuthUsername != "" || cfg.AuthAppPasswordHash != "" || cfg.AuthSecret != ""
	hasAll := cfg.AuthUsername != "" && cfg.AuthAppPasswordHash != "" && cfg.AuthSecret != ""
	if hasAny && !hasAll {
		return fmt.Errorf("auth settings require username, app_password_hash, and secret together")
	}

	return nil
}

func (c *Cfg) AuthEnabled() bool {
	return c.AuthUsername != "" && c.AuthAppPasswordHash != "" && c.AuthSecret != ""
}

func applyTimezone(timezone string) error {
	if timezone == "" {
		return nil
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return err
	}
	time.Local = loc

	return nil
}
