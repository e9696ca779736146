// Package pipeline drives one meeting recording from ingest to delivery.
// Each job is keyed by its source file identity and claims that identity in
// the shared store before doing any work, so duplicate triggers from the
// upload endpoint, push callbacks, and folder polls collapse to one run.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"minuteman/internal/minutes"
)

// Stage names in execution order.
const (
	StageIngest     = "ingest"
	StageTranscribe = "transcribe"
	StageSummarize  = "summarize"
	StagePost       = "post"
	StageRender     = "render"
	StageDeliver    = "deliver"
)

// Job carries the mutable state of one pipeline run between stages.
type Job struct {
	FileID string
	Name   string

	// LocalPath points at an already-ingested audio file from the upload
	// endpoint. When empty the ingest stage downloads from the watched
	// folder instead.
	LocalPath string

	// Channel overrides the configured draft channel for this job.
	Channel string

	Audio      []byte
	AudioPath  string
	Transcript string

	DraftID string
	Draft   minutes.Draft

	ReceiptChannel string
	ReceiptTS      string

	Document     string
	DocumentPath string
}

// Handler is the per-stage contract the manager drives. Prepare validates
// inputs cheaply; Execute performs the stage's work and mutates the job.
type Handler interface {
	Prepare(ctx context.Context, job *Job) error
	Execute(ctx context.Context, job *Job) error
}

// DeriveDraftID maps a file identity to its draft identity. The mapping is
// deterministic so a retried run claims the same posting receipt and the
// upload endpoint can report the draft id before the pipeline finishes.
func DeriveDraftID(fileID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("minuteman:"+fileID)).String()
}

// deriveSuccessorID names the replacement draft when an approved draft's
// source file is reprocessed. The approved draft keeps its id and receipt;
// the successor gets its own posting identity.
func deriveSuccessorID(fileID string, generation int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "minuteman:%s#%d", fileID, generation)).String()
}
