// Package config loads and defaults the planner's configuration: a root
// Config composed of per-concern sub-configs, following the same
// create-with-defaults-on-first-run / merge-on-subsequent-runs loader and
// secrets-from-env pattern the rest of the ambient stack uses.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Request       RequestConfig     `yaml:"request"`
	Log           LogConfig         `yaml:"log"`
	Server        ServerConfig      `yaml:"server"`
	GeoProvider   GeoProviderConfig `yaml:"geo_provider"`
	Selector      SelectorConfig    `yaml:"selector"`
	Sequencer     SequencerConfig   `yaml:"sequencer"`
	SolverWeights SolverWeights     `yaml:"solver_weights"`
	Store         StoreConfig       `yaml:"store"`
}

// RequestConfig holds HTTP request settings for the GeoProvider adapter's
// request client; the Selector adapter takes its retry and timeout settings
// from SelectorConfig instead.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// LogConfig holds per-concern logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
	Solver   LogSettings `yaml:"solver"`
	LLM      LogSettings `yaml:"llm"`
}

// ServerConfig holds HTTP server settings for the Planning HTTP operations.
type ServerConfig struct {
	Address            string `yaml:"address"`
	MaxConcurrentPlans int    `yaml:"max_concurrent_plans"` // callers' own concurrency cap; no built-in queue
}

// GeoProviderConfig holds settings for the default GeoProvider port adapter.
type GeoProviderConfig struct {
	Provider  string   `yaml:"provider"` // "google_maps"
	Timeout   Duration `yaml:"timeout"`  // 30s default per spec §5
	BatchSize int      `yaml:"batch_size"` // 25 default per spec §4.2/§6
}

// SelectorConfig holds settings for the Selector port.
type SelectorConfig struct {
	Provider            string            `yaml:"provider"` // "llm"
	Timeout             Duration          `yaml:"timeout"`  // 120s default per spec §5
	MaxRetries          int               `yaml:"max_retries"` // 5 default
	Profiles            map[string]string `yaml:"profiles"`    // intent -> model name
	StartingSetMin      int               `yaml:"starting_set_min"` // 8
	StartingSetMax      int               `yaml:"starting_set_max"` // 12
	BackupsMin          int               `yaml:"backups_min"` // 2
	BackupsMax          int               `yaml:"backups_max"` // 3
	BackupSimilarityMin float64           `yaml:"backup_similarity_min"` // 0.6
}

// SequencerConfig holds the CP core's tunable solve-budget parameters
// (worker count, timeout, relative gap, presolve) -- the original's
// ilp_optimizer.py exposes these as solver parameters rather than inline
// constants; SPEC_FULL keeps them tunable.
type SequencerConfig struct {
	Timeout            Duration `yaml:"timeout"`       // 30s default
	Workers            int      `yaml:"workers"`       // 4 default
	RelativeGap        float64  `yaml:"relative_gap"`  // 0.05 default
	Presolve           bool     `yaml:"presolve"`      // true default
	StartMinutes       int      `yaml:"start_minutes"` // 540 (09:00)
	AvgSlotMinutes     int      `yaml:"avg_slot_minutes"` // 150, see spec §9 open question 1
	WalkingThresholdKM Distance `yaml:"walking_threshold_km"` // 5km soft-penalty threshold
	WalkSpeedKMH       float64  `yaml:"walk_speed_kmh"` // 4 km/h, used by greedy day partitioning
	TwoOptPasses       int      `yaml:"two_opt_passes"` // 10 default
}

// SolverWeights holds the objective function's distance/coherence/penalty
// weights (spec §4.5).
type SolverWeights struct {
	Distance  float64 `yaml:"distance"`  // w_d, default 0.5
	Coherence float64 `yaml:"coherence"` // w_c, default 0.5
	Penalty   float64 `yaml:"penalty"`   // w_p, default 0.3
}

// StoreConfig holds settings for the Tour Store and POI Catalog's on-disk
// layout.
type StoreConfig struct {
	RootDir string `yaml:"root_dir"` // root of the "tours/" and catalog trees
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Request: RequestConfig{
			Retries: 5,
			Timeout: Duration(30 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(1 * time.Second),
				MaxDelay:  Duration(60 * time.Second),
			},
		},
		Log: LogConfig{
			Server:   LogSettings{Path: "./logs/server.log", Level: "INFO"},
			Requests: LogSettings{Path: "./logs/requests.log", Level: "INFO"},
			Solver:   LogSettings{Path: "./logs/solver.log", Level: "INFO"},
			LLM:      LogSettings{Path: "./logs/llm.log", Level: "INFO"},
		},
		Server: ServerConfig{
			Address:            "localhost:8080",
			MaxConcurrentPlans: 4,
		},
		GeoProvider: GeoProviderConfig{
			Provider:  "google_maps",
			Timeout:   Duration(30 * time.Second),
			BatchSize: 25,
		},
		Selector: SelectorConfig{
			Provider:   "llm",
			Timeout:    Duration(120 * time.Second),
			MaxRetries: 5,
			Profiles: map[string]string{
				"select_pois": "gemini-2.5-flash",
			},
			StartingSetMin:      8,
			StartingSetMax:      12,
			BackupsMin:          2,
			BackupsMax:          3,
			BackupSimilarityMin: 0.6,
		},
		Sequencer: SequencerConfig{
			Timeout:            Duration(30 * time.Second),
			Workers:            4,
			RelativeGap:        0.05,
			Presolve:           true,
			StartMinutes:       540,
			AvgSlotMinutes:     150,
			WalkingThresholdKM: Distance(5000),
			WalkSpeedKMH:       4.0,
			TwoOptPasses:       10,
		},
		SolverWeights: SolverWeights{
			Distance:  0.5,
			Coherence: 0.5,
			Penalty:   0.3,
		},
		Store: StoreConfig{
			RootDir: "./data",
		},
	}
}

// Load loads the configuration from the given path. If the file does not
// exist it is created with default values; if it exists, it is unmarshaled
// over a copy of the defaults (fields absent from the file keep their
// default).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		_ = godotenv.Load(".env.local", ".env")
		loadSecretsFromEnv(cfg)

		return cfg, nil
	}

	if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	_ = godotenv.Load(".env.local", ".env")
	loadSecretsFromEnv(cfg)

	return cfg, nil
}

// Secrets holds credentials pulled from the environment rather than the
// YAML file, per spec §6's "at minimum a credentials location for the
// GeoProvider and the Selector port".
type Secrets struct {
	GoogleMapsAPIKey string
	GeminiAPIKey     string
}

// secretsFromEnv is populated by loadSecretsFromEnv and read by the
// GeoProvider/Selector adapter constructors.
var secretsFromEnv Secrets

// LoadedSecrets returns the secrets pulled from the environment by the most
// recent Load call.
func LoadedSecrets() Secrets { return secretsFromEnv }

func loadSecretsFromEnv(_ *Config) {
	secretsFromEnv = Secrets{
		GoogleMapsAPIKey: os.Getenv("GOOGLE_MAPS_API_KEY"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
	}
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Tripweave Configuration
# ---------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers), nm (nautical miles)

`)
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path if it
// does not already exist.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
