package config

const (
	defaultDataDir             = "~/.local/share/minuteman"
	defaultLogDir              = "~/.local/share/minuteman/logs"
	defaultAPIBind             = "127.0.0.1:8270"
	defaultSlackAPIBase        = "https://slack.com/api"
	defaultSlackTimeout        = 10
	defaultAnalysisBaseURL     = "https://api.openai.com/v1/chat/completions"
	defaultAnalysisModel       = "gpt-4o-mini"
	defaultTranscribeURL       = "https://api.openai.com/v1/audio/transcriptions"
	defaultTranscribeModel     = "whisper-1"
	defaultAnalysisTimeout     = 120
	defaultAnalysisRetries     = 5
	defaultDriveAPIBase        = "https://www.googleapis.com/drive/v3"
	defaultDrivePollInterval   = 60
	defaultDriveLeaseSeconds   = 3600
	defaultMailSMTPPort        = 465
	defaultRemindTimezone      = "Asia/Tokyo"
	defaultRemindHour          = 10
	defaultRemindScanInterval  = 60
	defaultRemindLateGraceMins = 360
	defaultWorkflowPoll        = 5
	defaultWorkflowErrorRetry  = 10
	defaultStageRetryAttempts  = 3
	defaultStageRetryBaseMs    = 500
	defaultCompactAfterDays    = 90
	defaultAlertTimeout        = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// DefaultSlots is the reminder slot list applied when none is configured:
// one reminder the calendar day before the due date at the default hour, and
// one exactly an hour before the due instant.
var DefaultSlots = []string{"day-before@10:00", "1h"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Slack: Slack{
			APIBase:        defaultSlackAPIBase,
			RequestTimeout: defaultSlackTimeout,
		},
		Analysis: Analysis{
			BaseURL:         defaultAnalysisBaseURL,
			Model:           defaultAnalysisModel,
			TranscribeURL:   defaultTranscribeURL,
			TranscribeModel: defaultTranscribeModel,
			TimeoutSeconds:  defaultAnalysisTimeout,
			RetryAttempts:   defaultAnalysisRetries,
		},
		Drive: Drive{
			APIBase:             defaultDriveAPIBase,
			PollIntervalSeconds: defaultDrivePollInterval,
			WatchLeaseSeconds:   defaultDriveLeaseSeconds,
		},
		Mail: Mail{
			SMTPPort: defaultMailSMTPPort,
		},
		Remind: Remind{
			Timezone:            defaultRemindTimezone,
			DefaultHour:         defaultRemindHour,
			Slots:               append([]string{}, DefaultSlots...),
			ScanIntervalSeconds: defaultRemindScanInterval,
			LateGraceMinutes:    defaultRemindLateGraceMins,
		},
		Workflow: Workflow{
			PollIntervalSeconds:  defaultWorkflowPoll,
			ErrorRetrySeconds:    defaultWorkflowErrorRetry,
			StageRetryAttempts:   defaultStageRetryAttempts,
			StageRetryBaseMillis: defaultStageRetryBaseMs,
			CompactAfterDays:     defaultCompactAfterDays,
		},
		Alerts: Alerts{
			RequestTimeout: defaultAlertTimeout,
			Failures:       true,
			WatchLease:     true,
			Reminders:      true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
