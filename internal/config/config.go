package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// EnvConfigPath overrides the config file location when set.
const EnvConfigPath = "MINUTEMAN_CONFIG"

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Slack contains messaging platform credentials and posting defaults.
type Slack struct {
	BotToken       string            `toml:"bot_token"`
	SigningSecret  string            `toml:"signing_secret"`
	DefaultChannel string            `toml:"default_channel"`
	APIBase        string            `toml:"api_base"`
	UserMap        map[string]string `toml:"user_map"`
	RequestTimeout int               `toml:"request_timeout"`
}

// Analysis contains transcription and summarization service settings.
type Analysis struct {
	APIKey          string `toml:"api_key"`
	BaseURL         string `toml:"base_url"`
	Model           string `toml:"model"`
	TranscribeURL   string `toml:"transcribe_url"`
	TranscribeModel string `toml:"transcribe_model"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	RetryAttempts   int    `toml:"retry_attempts"`
}

// Drive contains watched-folder settings for the cloud storage integration.
type Drive struct {
	Enabled             bool   `toml:"enabled"`
	APIBase             string `toml:"api_base"`
	AccessToken         string `toml:"access_token"`
	FolderID            string `toml:"folder_id"`
	UploadFolderID      string `toml:"upload_folder_id"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	WatchEnabled        bool   `toml:"watch_enabled"`
	WatchCallbackURL    string `toml:"watch_callback_url"`
	WatchLeaseSeconds   int    `toml:"watch_lease_seconds"`
	WebhookSecret       string `toml:"webhook_secret"`
}

// Mail contains SMTP delivery settings for approved minutes documents.
type Mail struct {
	Enabled  bool   `toml:"enabled"`
	SMTPHost string `toml:"smtp_host"`
	SMTPPort int    `toml:"smtp_port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	To       string `toml:"to"`
}

// Remind contains reminder slot computation and scan loop settings.
type Remind struct {
	Timezone            string   `toml:"timezone"`
	DefaultHour         int      `toml:"default_hour"`
	Slots               []string `toml:"slots"`
	ScanIntervalSeconds int      `toml:"scan_interval_seconds"`
	LateGraceMinutes    int      `toml:"late_grace_minutes"`
}

// Workflow contains pipeline polling intervals and retry policy.
type Workflow struct {
	PollIntervalSeconds  int `toml:"poll_interval_seconds"`
	ErrorRetrySeconds    int `toml:"error_retry_seconds"`
	StageRetryAttempts   int `toml:"stage_retry_attempts"`
	StageRetryBaseMillis int `toml:"stage_retry_base_millis"`
	CompactAfterDays     int `toml:"compact_after_days"`
}

// Alerts contains ntfy push notification settings for operational events.
type Alerts struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Failures       bool   `toml:"failures"`
	WatchLease     bool   `toml:"watch_lease"`
	Reminders      bool   `toml:"reminders"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for minuteman.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Slack: messaging platform credentials and posting defaults
//   - Analysis: transcription and summarization endpoints
//   - Drive: watched folder, push channel lease, poll cadence
//   - Mail: SMTP delivery of rendered documents
//   - Remind: timezone, reminder slots, scan loop settings
//   - Workflow: pipeline polling intervals and retry policy
//   - Alerts: ntfy operational notifications
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Slack    Slack    `toml:"slack"`
	Analysis Analysis `toml:"analysis"`
	Drive    Drive    `toml:"drive"`
	Mail     Mail     `toml:"mail"`
	Remind   Remind   `toml:"remind"`
	Workflow Workflow `toml:"workflow"`
	Alerts   Alerts   `toml:"alerts"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/minuteman/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The second return is the
// resolved path, the third whether a file existed at it.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

// WriteSample writes the embedded sample configuration to the given path,
// refusing to overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the data and log directories when missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location inside the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "minuteman.db")
}

// UploadDir returns the directory for ingested audio files.
func (c *Config) UploadDir() string {
	return filepath.Join(c.Paths.DataDir, "uploads")
}

// TranscriptDir returns the directory for transcription text files.
func (c *Config) TranscriptDir() string {
	return filepath.Join(c.Paths.DataDir, "transcripts")
}

// DocumentDir returns the directory for rendered minutes documents.
func (c *Config) DocumentDir() string {
	return filepath.Join(c.Paths.DataDir, "documents")
}

func resolveConfigPath(path string) (string, bool, error) {
	candidate := strings.TrimSpace(path)
	if candidate == "" {
		candidate = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if candidate == "" {
		def, err := DefaultConfigPath()
		if err != nil {
			return "", false, err
		}
		candidate = def
	}

	expanded, err := expandPath(candidate)
	if err != nil {
		return "", false, err
	}

	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config path: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	c.Slack.APIBase = strings.TrimRight(strings.TrimSpace(c.Slack.APIBase), "/")
	c.Analysis.BaseURL = strings.TrimSpace(c.Analysis.BaseURL)
	c.Drive.APIBase = strings.TrimRight(strings.TrimSpace(c.Drive.APIBase), "/")
	c.Remind.Timezone = strings.TrimSpace(c.Remind.Timezone)
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", trimmed, err)
	}
	return abs, nil
}
