// Package config reads the YAML configuration file which defines where photos are cloned
// from and to, how they are geotagged and the policy rules applied to each rating.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sfomuseum/go-media-clone/common"
	"github.com/sfomuseum/go-media-clone/policy"
	"github.com/sfomuseum/go-media-clone/track"
	"gopkg.in/yaml.v3"
)

// Environment variables which override values in the configuration file.
const (
	EnvFrom        = "MEDIA_CLONE_FROM"
	EnvTo          = "MEDIA_CLONE_TO"
	EnvWorkers     = "MEDIA_CLONE_WORKERS"
	EnvMatchWithin = "MEDIA_CLONE_MATCH_WITHIN"
	EnvTimezone    = "MEDIA_CLONE_TIMEZONE"
)

// Placeholders written by DefaultConfig which must be replaced before the file is used.
const (
	placeholderFrom = "YOUR_ORIGIN_PATH"
	placeholderTo   = "YOUR_TARGET_PATH"
)

// DefaultConfig is the configuration file written by `clone -init`.
const DefaultConfig = `import:
  from: YOUR_ORIGIN_PATH
  to: YOUR_TARGET_PATH
workers: 4
geotag:
  ignore: false
  match_within: 5m
  timezone: Local
  sources: []
policies:
- name: keep
  rate: [5]
  commands:
    format: preserve
- name: favourites
  rate: [4]
  commands:
    format: jpeg
    quality: 95%
- name: reduced
  rate: [3]
  commands:
    format: jpeg
    resize: 50m
- name: archive
  rate: [0, 1, 2]
  commands:
    format: jpeg
    resize: 36m
    quality: 92%
`

// Import defines where photos are read from and written to.
type Import struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Geotag defines how photos are matched against track logs.
type Geotag struct {
	Ignore bool `yaml:"ignore"`
	// A duration string such as "5m". Empty means track.DefaultWindow.
	MatchWithin string `yaml:"match_within"`
	// An IANA time zone name used to interpret EXIF capture times. Empty means Local.
	Timezone string `yaml:"timezone"`
	// Track-log source URIs, see sources.NewSource.
	Sources []string `yaml:"sources"`
}

// Config is a parsed configuration file.
type Config struct {
	Import       Import               `yaml:"import"`
	Workers      int                  `yaml:"workers"`
	Geotag       Geotag               `yaml:"geotag"`
	Policies     []*policy.RuleConfig `yaml:"policies"`
	AllowOverlap bool                 `yaml:"allow_overlap"`
	// An optional go-writer URI to publish run reports to.
	Reports string `yaml:"reports,omitempty"`
	// An optional path to a SQLite run journal.
	Journal string `yaml:"journal,omitempty"`

	table    *policy.Table
	window   time.Duration
	location *time.Location
}

// DefaultPath returns the path of the configuration file used when none is specified.
func DefaultPath() (string, error) {

	dir, err := os.UserConfigDir()

	if err != nil {
		return "", fmt.Errorf("Failed to derive user config directory, %w", err)
	}

	return filepath.Join(dir, "media-clone", "config.yaml"), nil
}

// Load reads the configuration file at path, applies any environment overrides and
// validates the result.
func Load(ctx context.Context, path string) (*Config, error) {

	abs_path, err := filepath.Abs(path)

	if err != nil {
		return nil, fmt.Errorf("Failed to derive absolute path for %s, %w", path, err)
	}

	reader_uri := "fs://" + filepath.Dir(abs_path)

	body, err := common.ReadAll(ctx, reader_uri, filepath.Base(abs_path))

	if err != nil {
		return nil, fmt.Errorf("Failed to read config, %w", err)
	}

	return Parse(body)
}

// Parse decodes body, applies any environment overrides and validates the result.
func Parse(body []byte) (*Config, error) {

	var cfg *Config

	err := yaml.Unmarshal(body, &cfg)

	if err != nil {
		return nil, fmt.Errorf("Failed to parse config, %w", err)
	}

	if cfg == nil {
		return nil, errors.New("Config is empty")
	}

	err = cfg.applyEnv()

	if err != nil {
		return nil, err
	}

	err = cfg.validate()

	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// WriteDefault writes DefaultConfig to path. An existing file is only replaced if force
// is true.
func WriteDefault(path string, force bool) error {

	if !force {

		_, err := os.Stat(path)

		if err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}

	err := os.MkdirAll(filepath.Dir(path), 0755)

	if err != nil {
		return fmt.Errorf("Failed to create config directory, %w", err)
	}

	err = os.WriteFile(path, []byte(DefaultConfig), 0644)

	if err != nil {
		return fmt.Errorf("Failed to write config, %w", err)
	}

	return nil
}

// Policy returns the validated policy table.
func (cfg *Config) Policy() *policy.Table {
	return cfg.table
}

// Window returns the maximum distance between a capture time and a track point.
func (cfg *Config) Window() time.Duration {
	return cfg.window
}

// Location returns the time zone EXIF capture times are recorded in.
func (cfg *Config) Location() *time.Location {
	return cfg.location
}

// ImportPaths returns the configured source and destination, failing if either is missing
// or is still the placeholder written by DefaultConfig.
func (cfg *Config) ImportPaths() (string, string, error) {

	if cfg.Import.From == "" || cfg.Import.From == placeholderFrom {
		return "", "", errors.New("Missing import.from")
	}

	if cfg.Import.To == "" || cfg.Import.To == placeholderTo {
		return "", "", errors.New("Missing import.to")
	}

	return cfg.Import.From, cfg.Import.To, nil
}

func (cfg *Config) applyEnv() error {

	cfg.Import.From = getEnv(EnvFrom, cfg.Import.From)
	cfg.Import.To = getEnv(EnvTo, cfg.Import.To)
	cfg.Geotag.MatchWithin = getEnv(EnvMatchWithin, cfg.Geotag.MatchWithin)
	cfg.Geotag.Timezone = getEnv(EnvTimezone, cfg.Geotag.Timezone)

	workers, err := getEnvInt(EnvWorkers, cfg.Workers)

	if err != nil {
		return err
	}

	cfg.Workers = workers
	return nil
}

func (cfg *Config) validate() error {

	if cfg.Workers < 0 {
		return fmt.Errorf("Invalid workers %d", cfg.Workers)
	}

	cfg.window = track.DefaultWindow

	if cfg.Geotag.MatchWithin != "" {

		d, err := time.ParseDuration(cfg.Geotag.MatchWithin)

		if err != nil {
			return fmt.Errorf("Invalid geotag.match_within '%s', %w", cfg.Geotag.MatchWithin, err)
		}

		if d < 0 {
			return fmt.Errorf("Invalid geotag.match_within '%s'", cfg.Geotag.MatchWithin)
		}

		cfg.window = d
	}

	cfg.location = time.Local

	if cfg.Geotag.Timezone != "" && !strings.EqualFold(cfg.Geotag.Timezone, "local") {

		loc, err := time.LoadLocation(cfg.Geotag.Timezone)

		if err != nil {
			return fmt.Errorf("Invalid geotag.timezone '%s', %w", cfg.Geotag.Timezone, err)
		}

		cfg.location = loc
	}

	rules, err := policy.ParseRules(cfg.Policies)

	if err != nil {
		return err
	}

	table, err := policy.Validate(rules, &policy.ValidateOptions{AllowOverlap: cfg.AllowOverlap})

	if err != nil {
		return err
	}

	cfg.table = table
	return nil
}

func getEnv(key string, fallback string) string {

	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {

	v := os.Getenv(key)

	if v == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(v)

	if err != nil {
		return 0, fmt.Errorf("Invalid %s '%s', %w", key, v, err)
	}

	return n, nil
}
