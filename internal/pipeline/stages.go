package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"minuteman/internal/minutes"
	"minuteman/internal/posting"
	"minuteman/internal/render"
	"minuteman/internal/services"
	"minuteman/internal/slack"
	"minuteman/internal/store"
)

type transcriptionClient interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
	Summarize(ctx context.Context, transcript string) (minutes.Draft, error)
}

type messageClient interface {
	PostMessage(ctx context.Context, channel, text string, blocks []slack.Block) (string, string, error)
	PostThreadMessage(ctx context.Context, channel, threadTS, text string, blocks []slack.Block) (string, string, error)
	UploadFile(ctx context.Context, channel, threadTS, filename, title string, content []byte) error
}

type folderStore interface {
	Download(ctx context.Context, fileID string) ([]byte, error)
	Upload(ctx context.Context, folderID, name, mimeType string, content []byte) (string, error)
}

type documentMailer interface {
	Enabled() bool
	SendDocument(ctx context.Context, subject, body, attachmentName string, attachment []byte) error
}

type postCoordinator interface {
	PostOnce(ctx context.Context, draftID string, publish posting.PublishFunc) (*store.Receipt, error)
}

type draftScheduler interface {
	Location() *time.Location
	DefaultHour() int
	ScheduleDraft(ctx context.Context, draftID string) error
}

// ingestStage obtains the audio: an uploaded local file, or a download from
// the watched folder.
type ingestStage struct {
	drive     folderStore
	uploadDir string
}

func (s *ingestStage) Prepare(ctx context.Context, job *Job) error {
	if strings.TrimSpace(job.FileID) == "" {
		return services.Wrap(services.ErrValidation, StageIngest, "prepare", "job has no file id", nil)
	}
	if job.LocalPath == "" && s.drive == nil {
		return services.Wrap(services.ErrConfiguration, StageIngest, "prepare", "no audio source: drive disabled and no local file", nil)
	}
	return nil
}

func (s *ingestStage) Execute(ctx context.Context, job *Job) error {
	var audio []byte
	var err error
	if job.LocalPath != "" {
		audio, err = os.ReadFile(job.LocalPath)
		if err != nil {
			return services.Wrap(services.ErrValidation, StageIngest, "read_local", "read uploaded audio", err)
		}
	} else {
		audio, err = s.drive.Download(ctx, job.FileID)
		if err != nil {
			return err
		}
	}
	if len(audio) == 0 {
		return services.Wrap(services.ErrValidation, StageIngest, "read", "audio content is empty", nil)
	}
	job.Audio = audio

	if job.Name == "" {
		job.Name = job.FileID + ".m4a"
	}
	path := filepath.Join(s.uploadDir, job.FileID+filepath.Ext(job.Name))
	if job.LocalPath != path {
		if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
			return fmt.Errorf("create upload dir: %w", err)
		}
		if err := os.WriteFile(path, audio, 0o644); err != nil {
			return fmt.Errorf("store audio copy: %w", err)
		}
	}
	job.AudioPath = path
	return nil
}

// transcribeStage turns the audio into text and keeps a file copy for
// later inspection.
type transcribeStage struct {
	analysis      transcriptionClient
	transcriptDir string
}

func (s *transcribeStage) Prepare(ctx context.Context, job *Job) error {
	if len(job.Audio) == 0 {
		return services.Wrap(services.ErrValidation, StageTranscribe, "prepare", "no audio to transcribe", nil)
	}
	return nil
}

func (s *transcribeStage) Execute(ctx context.Context, job *Job) error {
	transcript, err := s.analysis.Transcribe(ctx, job.Name, job.Audio)
	if err != nil {
		return err
	}
	job.Transcript = transcript

	if err := os.MkdirAll(s.transcriptDir, 0o755); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}
	path := filepath.Join(s.transcriptDir, job.FileID+".txt")
	if err := os.WriteFile(path, []byte(transcript), 0o644); err != nil {
		return fmt.Errorf("store transcript: %w", err)
	}
	return nil
}

// summarizeStage produces the draft and persists it.
type summarizeStage struct {
	analysis transcriptionClient
	store    *store.Store
}

func (s *summarizeStage) Prepare(ctx context.Context, job *Job) error {
	if strings.TrimSpace(job.Transcript) == "" {
		return services.Wrap(services.ErrValidation, StageSummarize, "prepare", "no transcript to summarize", nil)
	}
	return nil
}

func (s *summarizeStage) Execute(ctx context.Context, job *Job) error {
	draft, err := s.analysis.Summarize(ctx, job.Transcript)
	if err != nil {
		return err
	}

	draftID := DeriveDraftID(job.FileID)
	existing, lookupErr := s.store.Draft(ctx, draftID)
	if lookupErr != nil && !errors.Is(lookupErr, services.ErrNotFound) {
		return lookupErr
	}
	// An approved draft is immutable: retire it and give the rerun its own
	// posting identity instead of rewriting history.
	if lookupErr == nil && existing.Approved {
		if err := s.store.MarkSuperseded(ctx, draftID); err != nil {
			return err
		}
		priors, err := s.store.DraftsByFile(ctx, job.FileID)
		if err != nil {
			return err
		}
		draftID = deriveSuccessorID(job.FileID, len(priors)+1)
	}

	draft.ID = draftID
	draft.FileID = job.FileID
	if strings.TrimSpace(draft.Title) == "" {
		draft.Title = strings.TrimSuffix(job.Name, filepath.Ext(job.Name))
	}

	content, err := draft.Encode()
	if err != nil {
		return err
	}
	row := &store.DraftRow{
		ID:      draft.ID,
		FileID:  job.FileID,
		Title:   draft.DisplayTitle(),
		Content: content,
	}
	if err := s.store.SaveDraft(ctx, row); err != nil {
		return err
	}
	job.DraftID = draft.ID
	job.Draft = draft
	return nil
}

// postStage publishes the draft preview through the posting coordinator so
// concurrent runs of the same draft produce exactly one message.
type postStage struct {
	coordinator    postCoordinator
	slack          messageClient
	defaultChannel string
}

func (s *postStage) Prepare(ctx context.Context, job *Job) error {
	if job.DraftID == "" {
		return services.Wrap(services.ErrValidation, StagePost, "prepare", "no draft to post", nil)
	}
	return nil
}

func (s *postStage) Execute(ctx context.Context, job *Job) error {
	channel := job.Channel
	if channel == "" {
		channel = s.defaultChannel
	}
	draft := job.Draft
	receipt, err := s.coordinator.PostOnce(ctx, job.DraftID, func(ctx context.Context) (string, string, error) {
		blocks := slack.BuildPreviewBlocks(job.DraftID, draft)
		return s.slack.PostMessage(ctx, channel, "議事録ドラフト: "+draft.DisplayTitle(), blocks)
	})
	if err != nil {
		return err
	}
	job.ReceiptChannel = receipt.Channel
	job.ReceiptTS = receipt.MessageID
	return nil
}

// renderStage writes the minutes document.
type renderStage struct {
	documentDir string
	now         func() time.Time
}

func (s *renderStage) Prepare(ctx context.Context, job *Job) error {
	if job.DraftID == "" {
		return services.Wrap(services.ErrValidation, StageRender, "prepare", "no draft to render", nil)
	}
	return nil
}

func (s *renderStage) Execute(ctx context.Context, job *Job) error {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	document := render.Minutes(job.Draft, now())
	if err := os.MkdirAll(s.documentDir, 0o755); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}
	path := filepath.Join(s.documentDir, job.DraftID+".txt")
	if err := os.WriteFile(path, []byte(document), 0o644); err != nil {
		return fmt.Errorf("store document: %w", err)
	}
	job.Document = document
	job.DocumentPath = path
	return nil
}
