package config

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Paths,
		validation.Field(&c.Paths.DataDir, validation.Required),
		validation.Field(&c.Paths.APIBind, validation.Required),
	); err != nil {
		return fmt.Errorf("paths: %w", err)
	}

	if err := validation.ValidateStruct(&c.Remind,
		validation.Field(&c.Remind.Timezone, validation.Required),
		validation.Field(&c.Remind.DefaultHour, validation.Min(0), validation.Max(23)),
		validation.Field(&c.Remind.ScanIntervalSeconds, validation.Min(1)),
		validation.Field(&c.Remind.LateGraceMinutes, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("remind: %w", err)
	}
	if _, err := time.LoadLocation(c.Remind.Timezone); err != nil {
		return fmt.Errorf("remind: timezone %q: %w", c.Remind.Timezone, err)
	}

	if err := validation.ValidateStruct(&c.Workflow,
		validation.Field(&c.Workflow.PollIntervalSeconds, validation.Min(1)),
		validation.Field(&c.Workflow.ErrorRetrySeconds, validation.Min(1)),
		validation.Field(&c.Workflow.StageRetryAttempts, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}

	if c.Drive.Enabled {
		if err := validation.ValidateStruct(&c.Drive,
			validation.Field(&c.Drive.FolderID, validation.Required),
			validation.Field(&c.Drive.AccessToken, validation.Required),
			validation.Field(&c.Drive.PollIntervalSeconds, validation.Min(1)),
		); err != nil {
			return fmt.Errorf("drive: %w", err)
		}
		if c.Drive.WatchEnabled {
			if err := validation.ValidateStruct(&c.Drive,
				validation.Field(&c.Drive.WatchCallbackURL, validation.Required),
				validation.Field(&c.Drive.WatchLeaseSeconds, validation.Min(60)),
			); err != nil {
				return fmt.Errorf("drive watch: %w", err)
			}
		}
	}

	if c.Mail.Enabled {
		if err := validation.ValidateStruct(&c.Mail,
			validation.Field(&c.Mail.SMTPHost, validation.Required),
			validation.Field(&c.Mail.SMTPPort, validation.Min(1), validation.Max(65535)),
			validation.Field(&c.Mail.Username, validation.Required),
			validation.Field(&c.Mail.To, validation.Required),
		); err != nil {
			return fmt.Errorf("mail: %w", err)
		}
	}

	return nil
}
