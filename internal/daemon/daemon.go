// Package daemon wires the long-running services together and enforces
// single-instance execution through a file lock.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"minuteman/internal/alerts"
	"minuteman/internal/analysis"
	"minuteman/internal/api"
	"minuteman/internal/config"
	"minuteman/internal/drive"
	"minuteman/internal/logging"
	"minuteman/internal/mail"
	"minuteman/internal/pipeline"
	"minuteman/internal/posting"
	"minuteman/internal/remind"
	"minuteman/internal/slack"
	"minuteman/internal/store"
	"minuteman/internal/watch"
)

// stuckClaimCutoff is how old a mid-claim row (reminder in sending,
// receipt in posting, file in processing) must be before the startup
// sweep reclaims it.
const stuckClaimCutoff = 5 * time.Minute

// Daemon owns the store, the background services, and the HTTP surface.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store

	detector  *watch.Detector
	manager   *pipeline.Manager
	scheduler *remind.Scheduler
	server    *api.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// New builds the full service graph from configuration. The drive watcher is
// only constructed when the integration is enabled; the pipeline then feeds
// exclusively from API uploads.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	d, err := build(cfg, st, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	return d, nil
}

func build(cfg *config.Config, st *store.Store, logger *slog.Logger) (*Daemon, error) {
	alertSvc := alerts.NewService(cfg)

	analysisClient, err := analysis.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("analysis client: %w", err)
	}
	slackClient, err := slack.NewClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("slack client: %w", err)
	}

	users := slack.NewUserResolver(cfg.Slack.UserMap)
	reminderSender := slack.NewReminderSender(slackClient, st, users)
	scheduler, err := remind.NewScheduler(cfg, st, reminderSender, alertSvc, logger)
	if err != nil {
		return nil, fmt.Errorf("reminder scheduler: %w", err)
	}

	var (
		driveClient *drive.Client
		detector    *watch.Detector
		source      <-chan watch.FileEvent
	)
	if cfg.Drive.Enabled {
		driveClient, err = drive.NewClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("drive client: %w", err)
		}
		detector = watch.NewDetector(cfg, driveClient, st, alertSvc, logger)
		source = detector.Events()
	}

	coordinator := posting.NewCoordinator(st, logger)
	mailer := mail.NewSender(cfg, logger)

	manager := pipeline.NewManager(cfg, st, pipeline.Dependencies{
		Analysis:    analysisClient,
		Slack:       slackClient,
		Coordinator: coordinator,
		Scheduler:   scheduler,
		Drive:       driveClient,
		Mail:        mailer,
		Alerts:      alertSvc,
	}, source, logger)

	// Pass literal nils when the drive integration is off; a typed nil
	// pointer inside a non-nil interface would defeat the handler's checks.
	var handler *api.Handler
	if detector != nil {
		handler = api.NewHandler(cfg, st, manager, detector, driveClient, slackClient, scheduler, alertSvc, logger)
	} else {
		handler = api.NewHandler(cfg, st, manager, nil, nil, slackClient, scheduler, alertSvc, logger)
	}
	server, err := api.NewServer(cfg.Paths.APIBind, api.NewRouter(handler), logger)
	if err != nil {
		return nil, fmt.Errorf("api server: %w", err)
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "minutemand.lock")
	return &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     st,
		detector:  detector,
		manager:   manager,
		scheduler: scheduler,
		server:    server,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Addr reports the bound API listen address.
func (d *Daemon) Addr() string {
	return d.server.Addr()
}

// Start acquires the instance lock, sweeps interrupted reminder dispatches,
// and launches every background service.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another minuteman daemon instance is already running")
	}

	compactAfter := time.Duration(d.cfg.Workflow.CompactAfterDays) * 24 * time.Hour
	if err := d.store.Maintain(ctx, compactAfter, stuckClaimCutoff); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("store maintenance: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.manager.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start pipeline: %w", err)
	}
	if d.detector != nil {
		if err := d.detector.Start(runCtx); err != nil {
			d.manager.Stop()
			cancel()
			_ = d.lock.Unlock()
			return fmt.Errorf("start folder watcher: %w", err)
		}
	}
	d.scheduler.Start(runCtx)

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return d.server.Serve(groupCtx)
	})

	d.cancel = cancel
	d.group = group
	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("addr", d.server.Addr()),
		logging.String("lock", d.lockPath),
		logging.Bool("drive_watch", d.detector != nil),
	)
	return nil
}

// Wait blocks until the HTTP server exits, either from a serve error or
// context cancellation.
func (d *Daemon) Wait() error {
	if d.group == nil {
		return nil
	}
	return d.group.Wait()
}

// Stop shuts the services down in dependency order and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.group != nil {
		if err := d.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Warn("api server exited with error", logging.Error(err))
		}
		d.group = nil
	}
	if d.detector != nil {
		d.detector.Stop()
	}
	d.manager.Stop()
	d.scheduler.Stop()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and releases the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}
