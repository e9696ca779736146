package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"minuteman/internal/alerts"
	"minuteman/internal/config"
	"minuteman/internal/logging"
	"minuteman/internal/services"
	"minuteman/internal/store"
	"minuteman/internal/watch"
)

type pipelineStage struct {
	name    string
	handler Handler
}

// Dependencies are the external clients the stages run against. Drive and
// Mail may be nil when the corresponding config sections are disabled.
type Dependencies struct {
	Analysis    transcriptionClient
	Slack       messageClient
	Coordinator postCoordinator
	Scheduler   draftScheduler
	Drive       folderStore
	Mail        documentMailer
	Alerts      alerts.Service
}

// Manager runs jobs through the stage sequence. Jobs arrive from the
// detector's event stream and from direct submissions off the upload
// endpoint; both funnel through the same claim.
type Manager struct {
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger
	alerts alerts.Service

	stages      []pipelineStage
	source      <-chan watch.FileEvent
	submissions chan Job

	retryAttempts int
	retryBase     time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager wires the stage sequence from the given dependencies. The
// source channel may be nil when folder watching is disabled.
func NewManager(cfg *config.Config, st *store.Store, deps Dependencies, source <-chan watch.FileEvent, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	alertSvc := deps.Alerts
	if alertSvc == nil {
		alertSvc = alerts.NewNop()
	}

	attempts := cfg.Workflow.StageRetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	base := time.Duration(cfg.Workflow.StageRetryBaseMillis) * time.Millisecond
	if base <= 0 {
		base = 500 * time.Millisecond
	}

	componentLogger := logging.NewComponentLogger(logger, "pipeline")
	stages := []pipelineStage{
		{StageIngest, &ingestStage{drive: deps.Drive, uploadDir: cfg.UploadDir()}},
		{StageTranscribe, &transcribeStage{analysis: deps.Analysis, transcriptDir: cfg.TranscriptDir()}},
		{StageSummarize, &summarizeStage{analysis: deps.Analysis, store: st}},
		{StagePost, &postStage{coordinator: deps.Coordinator, slack: deps.Slack, defaultChannel: cfg.Slack.DefaultChannel}},
		{StageRender, &renderStage{documentDir: cfg.DocumentDir()}},
		{StageDeliver, &deliverStage{
			store:          st,
			scheduler:      deps.Scheduler,
			slack:          deps.Slack,
			drive:          deps.Drive,
			mail:           deps.Mail,
			logger:         componentLogger,
			uploadFolderID: cfg.Drive.UploadFolderID,
		}},
	}

	return &Manager{
		cfg:           cfg,
		store:         st,
		logger:        componentLogger,
		alerts:        alertSvc,
		stages:        stages,
		source:        source,
		submissions:   make(chan Job, 16),
		retryAttempts: attempts,
		retryBase:     base,
	}
}

// Start begins consuming jobs.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("pipeline already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go m.run(runCtx)
	return nil
}

// Stop cancels the worker and waits for the in-flight job.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Enqueue hands a job to the worker. It reports false when the queue is
// full; the claim makes a re-submission of the same identity harmless.
func (m *Manager) Enqueue(job Job) bool {
	select {
	case m.submissions <- job:
		return true
	default:
		return false
	}
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	for {
		var job Job
		select {
		case <-ctx.Done():
			return
		case job = <-m.submissions:
		case event, ok := <-m.source:
			if !ok {
				m.source = nil
				continue
			}
			job = Job{FileID: event.FileID, Name: event.Name}
		}
		if err := m.Process(ctx, &job); err != nil && errors.Is(err, context.Canceled) {
			return
		}
	}
}

// Process claims the job's file identity and drives it through every stage.
// Losing the claim is a silent success: another worker or an earlier run
// already owns the identity. A stage failure marks the record failed and
// leaves committed earlier stages alone.
func (m *Manager) Process(ctx context.Context, job *Job) error {
	ctx = services.WithJobID(ctx, job.FileID)
	logger := logging.WithContext(ctx, m.logger)

	claimed, err := m.store.TryClaim(ctx, job.FileID)
	if err != nil {
		logger.Error("claim failed", logging.Error(err))
		return err
	}
	if !claimed {
		logger.Debug("file already claimed; skipping",
			logging.String(logging.FieldEventType, "duplicate_suppressed"),
		)
		return nil
	}

	start := time.Now()
	logger.Info("job started", logging.String(logging.FieldEventType, "job_start"))

	for _, stage := range m.stages {
		if err := m.runStage(ctx, stage, job); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			m.failJob(ctx, logger, stage.name, job, err)
			return err
		}
	}

	if err := m.store.MarkDone(ctx, job.FileID, job.DraftID); err != nil {
		logger.Warn("mark done failed", logging.Error(err))
	}
	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.String("draft_id", job.DraftID),
		logging.Duration("job_duration", time.Since(start)),
	)
	if err := m.alerts.NotifyDraftPosted(ctx, job.Draft.DisplayTitle(), job.ReceiptChannel); err != nil {
		logger.Debug("draft posted alert failed", logging.Error(err))
	}
	return nil
}

func (m *Manager) runStage(ctx context.Context, stage pipelineStage, job *Job) error {
	ctx = services.WithStage(ctx, stage.name)
	logger := logging.WithContext(ctx, m.logger)

	if err := m.store.SetStage(ctx, job.FileID, stage.name); err != nil {
		logger.Warn("persist stage transition failed", logging.Error(err))
	}

	start := time.Now()
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	if err := stage.handler.Prepare(ctx, job); err != nil {
		return err
	}

	var err error
	for attempt := 0; attempt < m.retryAttempts; attempt++ {
		if attempt > 0 {
			delay := m.retryBase << (attempt - 1)
			logger.Warn("stage retrying",
				logging.Error(err),
				logging.Int("attempt", attempt+1),
				logging.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		err = stage.handler.Execute(ctx, job)
		if err == nil || !services.IsRetryable(err) {
			break
		}
	}
	if err != nil {
		return err
	}

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(start)),
	)
	return nil
}

func (m *Manager) failJob(ctx context.Context, logger *slog.Logger, stageName string, job *Job, cause error) {
	logger.Error("job failed",
		logging.Error(cause),
		logging.String(logging.FieldStage, stageName),
		logging.String(logging.FieldEventType, "job_failed"),
	)
	if err := m.store.MarkFailed(ctx, job.FileID, cause.Error()); err != nil {
		logger.Warn("mark failed did not apply", logging.Error(err))
	}
	if err := m.alerts.NotifyPipelineFailed(ctx, job.FileID, stageName, cause); err != nil {
		logger.Debug("pipeline failure alert failed", logging.Error(err))
	}
}
