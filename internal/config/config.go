package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Data       Data       `yaml:"data"`
	Matching   Matching   `yaml:"matching"`
	Extraction Extraction `yaml:"extraction"`
	TMDB       TMDB       `yaml:"tmdb"`
	Sources    Sources    `yaml:"sources"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

type Data struct {
	Dir          string `yaml:"dir"`
	OverrideFile string `yaml:"override_file"`
	BoxSetFile   string `yaml:"box_set_file"`
}

type Matching struct {
	NameThreshold  int `yaml:"name_threshold"`
	TitleThreshold int `yaml:"title_threshold"`
	// FuzzyFloor is the minimum score for the fuzzy fallback when resolving
	// raw picks against the catalog; lower than the title threshold because
	// list-site and auto-captioned titles are noisier.
	FuzzyFloor int `yaml:"fuzzy_floor"`
}

type Extraction struct {
	Model              string `yaml:"model"`
	APIKeyEnv          string `yaml:"api_key_env"`
	BaseURL            string `yaml:"base_url"`
	MaxQuoteLen        int    `yaml:"max_quote_len"`
	BatchSize          int    `yaml:"batch_size"`
	RequestIntervalSec int    `yaml:"request_interval_sec"`
	Workers            int    `yaml:"workers"`
}

type TMDB struct {
	APIKeyEnv          string `yaml:"api_key_env"`
	BaseURL            string `yaml:"base_url"`
	ImageBaseURL       string `yaml:"image_base_url"`
	RequestIntervalSec int    `yaml:"request_interval_sec"`
}

type Sources struct {
	UploadsFeedURL string `yaml:"uploads_feed_url"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for closetpicks.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "closetpicks")
}

// DataDir returns the XDG data directory for closetpicks.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "closetpicks")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/closetpicks/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'closetpicks init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Matching: Matching{
			NameThreshold:  80,
			TitleThreshold: 85,
			FuzzyFloor:     75,
		},
		Extraction: Extraction{
			Model:              "gemini-2.0-flash",
			APIKeyEnv:          "GEMINI_API_KEY",
			BaseURL:            "https://generativelanguage.googleapis.com",
			MaxQuoteLen:        500,
			BatchSize:          20,
			RequestIntervalSec: 6,
			Workers:            1,
		},
		TMDB: TMDB{
			APIKeyEnv:          "TMDB_API_KEY",
			BaseURL:            "https://api.themoviedb.org/3",
			ImageBaseURL:       "https://image.tmdb.org/t/p",
			RequestIntervalSec: 1,
		},
		Sources: Sources{
			UploadsFeedURL: "https://www.youtube.com/feeds/videos.xml?playlist_id=PL7D89754A5DAD1E8E",
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Data.Dir != "" {
		return c.Data.Dir
	}
	return DataDir()
}

// Snapshot and state file locations inside the data directory.

func (c *Config) CatalogFile() string {
	return filepath.Join(c.GetDataDir(), "criterion_catalog.json")
}
func (c *Config) GuestsFile() string     { return filepath.Join(c.GetDataDir(), "guests.json") }
func (c *Config) RawPicksFile() string   { return filepath.Join(c.GetDataDir(), "picks_raw.json") }
func (c *Config) PicksFile() string      { return filepath.Join(c.GetDataDir(), "picks.json") }
func (c *Config) SourcesDir() string     { return filepath.Join(c.GetDataDir(), "sources") }
func (c *Config) TranscriptsDir() string { return filepath.Join(c.GetDataDir(), "transcripts") }
func (c *Config) ValidationDir() string  { return filepath.Join(c.GetDataDir(), "validation") }
func (c *Config) CheckpointDB() string   { return filepath.Join(c.GetDataDir(), "checkpoints.db") }

// OverrideFile returns the override table path, defaulting into the data dir.
func (c *Config) OverrideFile() string {
	if c.Data.OverrideFile != "" {
		return c.Data.OverrideFile
	}
	return filepath.Join(c.GetDataDir(), "overrides.yaml")
}

// BoxSetFile returns the box-set registry path.
func (c *Config) BoxSetFile() string {
	if c.Data.BoxSetFile != "" {
		return c.Data.BoxSetFile
	}
	return filepath.Join(c.GetDataDir(), "box_sets.yaml")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
