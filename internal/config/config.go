// Package config loads operator settings for tagship from TOML and the environment.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultFileName   = ".tagship.toml"
	DefaultWorkDir    = "dist"
	DefaultLedgerPath = ".tagship/ledger.db"
	DefaultLogLevel   = "info"
	DefaultDefinition = "release.yml"
	DefaultStore      = "github"
	DefaultBackend    = "api"
	DefaultTimestamp  = "http://timestamp.digicert.com"

	configEnvKey        = "TAGSHIP_CONFIG"
	storeEnvKey         = "TAGSHIP_STORE"
	logLevelEnvKey      = "TAGSHIP_LOG_LEVEL"
	notaryBackendEnvKey = "TAGSHIP_NOTARY_BACKEND"
	workDirEnvKey       = "TAGSHIP_WORK_DIR"
	ledgerEnvKey        = "TAGSHIP_LEDGER"
	githubRepoEnvKey    = "GITHUB_REPOSITORY"
)

// Duration is a time.Duration written as a Go duration string, e.g. "90s"
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// NotarizationConfig configures the notary backend and verdict polling
type NotarizationConfig struct {
	// Backend is "api" or "notarytool". With "api" the notarization secret
	// is read once to upload the submission and polling uses a short-lived
	// read-only token. With "notarytool" the app-specific password is stored
	// in a keychain profile in the run's ephemeral keychain and stays there
	// while polling, until the keychain is deleted at the end of the run.
	// Use "api" when secrets must not outlive submission.
	Backend               string   `toml:"backend"`
	Deadline              Duration `toml:"deadline"`
	PollInitial           Duration `toml:"poll_initial"`
	PollMax               Duration `toml:"poll_max"`
	PollRequestsPerSecond float64  `toml:"poll_requests_per_second"`
}

// PublishConfig configures the release store and upload retries
type PublishConfig struct {
	Store          string   `toml:"store"`
	MaxAttempts    uint     `toml:"max_attempts"`
	InitialBackoff Duration `toml:"initial_backoff"`
	Checksums      bool     `toml:"checksums"`
	PGPSignature   bool     `toml:"pgp_signature"`
}

// GitHubConfig names the repository whose releases receive the artifacts
type GitHubConfig struct {
	Owner string `toml:"owner"`
	Repo  string `toml:"repo"`
}

// S3Config configures the S3 release store
type S3Config struct {
	Bucket   string `toml:"bucket"`
	Region   string `toml:"region"`
	Endpoint string `toml:"endpoint"`
	Prefix   string `toml:"prefix"`
}

// GCSConfig configures the GCS release store
type GCSConfig struct {
	Bucket string `toml:"bucket"`
	Prefix string `toml:"prefix"`
}

// FSConfig configures the local directory release store
type FSConfig struct {
	Dir string `toml:"dir"`
}

// SigningConfig configures code signing
type SigningConfig struct {
	TimestampURL string `toml:"timestamp_url"`
}

// LedgerConfig configures the run ledger
type LedgerConfig struct {
	Path string `toml:"path"`
}

// TelemetryConfig configures OTLP export; an empty endpoint disables it
type TelemetryConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint"`
	Insecure     bool   `toml:"insecure"`
}

// Config defines runtime configuration for tagship.
type Config struct {
	LogLevel     string             `toml:"log_level"`
	WorkDir      string             `toml:"work_dir"`
	SourceDir    string             `toml:"source_dir"`
	Definition   string             `toml:"definition"`
	Notarization NotarizationConfig `toml:"notarization"`
	Publish      PublishConfig      `toml:"publish"`
	GitHub       GitHubConfig       `toml:"github"`
	S3           S3Config           `toml:"s3"`
	GCS          GCSConfig          `toml:"gcs"`
	FS           FSConfig           `toml:"fs"`
	Signing      SigningConfig      `toml:"signing"`
	Ledger       LedgerConfig       `toml:"ledger"`
	Telemetry    TelemetryConfig    `toml:"telemetry"`

	// Path is the file the config was loaded from, empty for defaults only
	Path string `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		LogLevel:   DefaultLogLevel,
		WorkDir:    DefaultWorkDir,
		SourceDir:  ".",
		Definition: DefaultDefinition,
		Notarization: NotarizationConfig{
			Backend:               DefaultBackend,
			Deadline:              Duration{time.Hour},
			PollInitial:           Duration{15 * time.Second},
			PollMax:               Duration{2 * time.Minute},
			PollRequestsPerSecond: 1,
		},
		Publish: PublishConfig{
			Store:          DefaultStore,
			MaxAttempts:    5,
			InitialBackoff: Duration{2 * time.Second},
		},
		Signing: SigningConfig{TimestampURL: DefaultTimestamp},
		Ledger:  LedgerConfig{Path: DefaultLedgerPath},
	}
}

// Load reads configuration from path, or from TAGSHIP_CONFIG, or from
// .tagship.toml in the working directory when present. Environment overrides
// are applied last.
func Load(path string) (Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()

	explicit := true
	if path == "" {
		path = strings.TrimSpace(getenv(configEnvKey))
	}
	if path == "" {
		path = DefaultFileName
		explicit = false
	}

	found, err := loadFileIfExists(path, &cfg)
	if err != nil {
		return cfg, err
	}
	if !found && explicit {
		return cfg, fmt.Errorf("config file not found: %s", path)
	}
	if found {
		cfg.Path = path
	}

	applyEnv(&cfg, getenv)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return false, fmt.Errorf("unknown keys in config %s: %s", path, strings.Join(keys, ", "))
	}
	return true, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := strings.TrimSpace(getenv(storeEnvKey)); v != "" {
		cfg.Publish.Store = v
	}
	if v := strings.TrimSpace(getenv(logLevelEnvKey)); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(getenv(notaryBackendEnvKey)); v != "" {
		cfg.Notarization.Backend = v
	}
	if v := strings.TrimSpace(getenv(workDirEnvKey)); v != "" {
		cfg.WorkDir = v
	}
	if v := strings.TrimSpace(getenv(ledgerEnvKey)); v != "" {
		cfg.Ledger.Path = v
	}

	// Inside GitHub Actions the repository is known without configuration
	if cfg.GitHub.Owner == "" && cfg.GitHub.Repo == "" {
		if owner, repo, ok := strings.Cut(getenv(githubRepoEnvKey), "/"); ok {
			cfg.GitHub.Owner = owner
			cfg.GitHub.Repo = repo
		}
	}
}

// Validate checks that settings are usable
func (c Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (want debug, info, warn or error)", c.LogLevel)
	}

	switch c.Publish.Store {
	case "github", "s3", "gcs", "fs":
	default:
		return fmt.Errorf("invalid publish.store %q (want github, s3, gcs or fs)", c.Publish.Store)
	}
	if c.Publish.MaxAttempts < 1 {
		return fmt.Errorf("publish.max_attempts must be at least 1")
	}

	n := c.Notarization
	switch n.Backend {
	case "api", "notarytool":
	default:
		return fmt.Errorf("invalid notarization.backend %q (want api or notarytool)", n.Backend)
	}
	if n.Deadline.Duration <= 0 {
		return fmt.Errorf("notarization.deadline must be positive")
	}
	if n.PollInitial.Duration <= 0 || n.PollMax.Duration < n.PollInitial.Duration {
		return fmt.Errorf("notarization.poll_initial must be positive and not exceed poll_max")
	}
	if n.PollRequestsPerSecond <= 0 {
		return fmt.Errorf("notarization.poll_requests_per_second must be positive")
	}

	if c.Ledger.Path == "" {
		return fmt.Errorf("ledger.path is required")
	}
	return nil
}
