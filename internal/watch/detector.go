// Package watch turns cloud-folder activity into file events for the
// pipeline. Two producers feed one deduplicating consumer: push callbacks
// from a registered notification channel, and a periodic folder poll that
// works even when no channel can be registered.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"minuteman/internal/alerts"
	"minuteman/internal/config"
	"minuteman/internal/drive"
	"minuteman/internal/logging"
	"minuteman/internal/store"
)

// FileEvent announces a file that may need processing. The detector only
// filters obvious repeats; the orchestrator's claim is the authoritative
// dedupe.
type FileEvent struct {
	FileID     string
	Name       string
	ObservedAt time.Time
}

type folderClient interface {
	ListRecent(ctx context.Context, limit int) ([]drive.File, error)
	RegisterWatch(ctx context.Context, callbackURL string, lease time.Duration) (*drive.WatchChannel, error)
	StopWatch(ctx context.Context, channel *drive.WatchChannel) error
}

type statusReader interface {
	Status(ctx context.Context, fileID string) (store.FileStatus, bool, error)
}

// Detector monitors the watched folder and emits file events.
type Detector struct {
	client  folderClient
	records statusReader
	alerts  alerts.Service
	logger  *slog.Logger

	events        chan FileEvent
	pollInterval  time.Duration
	pollLimit     int
	watchEnabled  bool
	callbackURL   string
	leaseDuration time.Duration
	renewWindow   time.Duration
	now           func() time.Time

	mu      sync.Mutex
	running bool
	channel *drive.WatchChannel

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDetector wires the detector from the drive config section. The client
// and store parameters accept the concrete types from internal/drive and
// internal/store.
func NewDetector(cfg *config.Config, client folderClient, records statusReader, alertSvc alerts.Service, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = logging.NewNop()
	}
	if alertSvc == nil {
		alertSvc = alerts.NewNop()
	}
	poll := time.Duration(cfg.Drive.PollIntervalSeconds) * time.Second
	if poll <= 0 {
		poll = time.Minute
	}
	lease := time.Duration(cfg.Drive.WatchLeaseSeconds) * time.Second
	if lease <= 0 {
		lease = time.Hour
	}
	renew := lease / 4
	if renew < time.Minute {
		renew = time.Minute
	}
	return &Detector{
		client:        client,
		records:       records,
		alerts:        alertSvc,
		logger:        logging.NewComponentLogger(logger, "watch"),
		events:        make(chan FileEvent, 32),
		pollInterval:  poll,
		pollLimit:     50,
		watchEnabled:  cfg.Drive.WatchEnabled && cfg.Drive.WatchCallbackURL != "",
		callbackURL:   cfg.Drive.WatchCallbackURL,
		leaseDuration: lease,
		renewWindow:   renew,
		now:           time.Now,
	}
}

// Events is the stream the pipeline manager consumes.
func (d *Detector) Events() <-chan FileEvent {
	return d.events
}

// Start launches the poll loop and, when enabled, the push channel lease.
func (d *Detector) Start(ctx context.Context) error {
	if d == nil {
		return errors.New("detector unavailable")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("detector already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.ctx = runCtx
	d.cancel = cancel
	d.running = true

	d.wg.Add(1)
	go d.loop()
	return nil
}

// Stop cancels the loop, waits for in-flight work, and releases the push
// channel if one is registered.
func (d *Detector) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()

	d.mu.Lock()
	channel := d.channel
	d.channel = nil
	d.mu.Unlock()
	if channel != nil {
		ctx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelStop()
		if err := d.client.StopWatch(ctx, channel); err != nil {
			d.logger.Warn("failed to stop push channel", logging.Error(err))
		}
	}
}

// Push injects a normalized push notification. Sync messages only confirm
// channel creation; anything else triggers an immediate folder listing
// because push callbacks do not identify the changed file.
func (d *Detector) Push(ctx context.Context, notification drive.PushNotification) error {
	if notification.Sync() {
		d.logger.Debug("push channel confirmed",
			logging.String("channel_id", notification.ChannelID),
		)
		return nil
	}
	d.logger.Debug("push notification received",
		logging.String("channel_id", notification.ChannelID),
		logging.String("resource_state", notification.ResourceState),
	)
	return d.pollOnce(ctx)
}

// LeaseState reports the push channel lease for the status endpoint.
func (d *Detector) LeaseState() string {
	if !d.watchEnabled {
		return "poll-only"
	}
	d.mu.Lock()
	channel := d.channel
	d.mu.Unlock()
	if channel == nil {
		return "unregistered"
	}
	if d.now().After(channel.Expiration.Add(-d.renewWindow)) {
		return "expiring"
	}
	return "active"
}

func (d *Detector) loop() {
	defer d.wg.Done()

	d.maintainLease(d.ctx)
	if err := d.pollOnce(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn("folder poll failed; will retry", logging.Error(err))
	}

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.maintainLease(d.ctx)
			if err := d.pollOnce(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Warn("folder poll failed; will retry", logging.Error(err))
			}
		}
	}
}

// pollOnce lists the folder and emits events for files the store has not
// finished with. Listing failures are returned for the caller to log; no
// file is ever marked processed here.
func (d *Detector) pollOnce(ctx context.Context) error {
	files, err := d.client.ListRecent(ctx, d.pollLimit)
	if err != nil {
		return err
	}
	for _, file := range files {
		emit, err := d.shouldEmit(ctx, file.ID)
		if err != nil {
			d.logger.Warn("dedupe lookup failed; emitting anyway",
				logging.String(logging.FieldJobID, file.ID),
				logging.Error(err),
			)
			emit = true
		}
		if !emit {
			continue
		}
		event := FileEvent{FileID: file.ID, Name: file.Name, ObservedAt: d.now()}
		select {
		case d.events <- event:
			d.logger.Debug("file event emitted",
				logging.String(logging.FieldJobID, file.ID),
				logging.String("file_name", file.Name),
			)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// shouldEmit is the fast-path filter. Files already processing or done are
// dropped; failed files surface again so the claim can decide on a retry.
func (d *Detector) shouldEmit(ctx context.Context, fileID string) (bool, error) {
	status, exists, err := d.records.Status(ctx, fileID)
	if err != nil {
		return false, err
	}
	if !exists {
		return true, nil
	}
	return status == store.FileFailed, nil
}

// maintainLease walks the push channel through its lifecycle:
// unregistered channels are (re)registered, channels inside the renew
// window are replaced, and a registration that cannot be obtained leaves
// the detector in poll-only mode until a later tick succeeds.
func (d *Detector) maintainLease(ctx context.Context) {
	if !d.watchEnabled {
		return
	}

	d.mu.Lock()
	channel := d.channel
	d.mu.Unlock()

	now := d.now()
	if channel != nil && now.Before(channel.Expiration.Add(-d.renewWindow)) {
		return
	}

	replacement, err := d.client.RegisterWatch(ctx, d.callbackURL, d.leaseDuration)
	if err != nil {
		if channel != nil && now.After(channel.Expiration) {
			d.mu.Lock()
			d.channel = nil
			d.mu.Unlock()
			d.logger.Error("push channel lease lost; polling only", logging.Error(err))
			if alertErr := d.alerts.NotifyWatchLeaseLost(ctx, err.Error()); alertErr != nil {
				d.logger.Warn("watch lease alert failed", logging.Error(alertErr))
			}
			return
		}
		d.logger.Warn("push channel registration failed; polling only", logging.Error(err))
		return
	}

	d.mu.Lock()
	d.channel = replacement
	d.mu.Unlock()
	d.logger.Info("push channel registered",
		logging.String("channel_id", replacement.ID),
		logging.Time("expires_at", replacement.Expiration),
	)

	if channel != nil {
		if err := d.client.StopWatch(ctx, channel); err != nil {
			d.logger.Debug("failed to stop previous push channel", logging.Error(err))
		}
	}
}
