package testsupport

import (
	"path/filepath"
	"testing"

	"minuteman/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Slack.BotToken = "xoxb-test"
	cfgVal.Slack.SigningSecret = "test-secret"
	cfgVal.Slack.DefaultChannel = "#minutes-test"
	cfgVal.Analysis.APIKey = "test"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSlackAPIBase points the Slack client at a test server.
func WithSlackAPIBase(base string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Slack.APIBase = base
	}
}

// WithAnalysisBaseURL points the analysis client at a test server.
func WithAnalysisBaseURL(base string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Analysis.BaseURL = base
		b.cfg.Analysis.TranscribeURL = base
	}
}

// WithDriveAPIBase enables the drive integration against a test server.
func WithDriveAPIBase(base string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Drive.Enabled = true
		b.cfg.Drive.APIBase = base
		b.cfg.Drive.AccessToken = "test-token"
		b.cfg.Drive.FolderID = "folder-1"
	}
}

// WithTimezone overrides the reminder timezone on the test config.
func WithTimezone(tz string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Remind.Timezone = tz
	}
}

// WithSlots overrides the reminder slot list on the test config.
func WithSlots(slots ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Remind.Slots = slots
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
