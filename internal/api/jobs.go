package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"minuteman/internal/pipeline"
	"minuteman/internal/services"
	"minuteman/internal/store"
)

type jobView struct {
	FileID    string `json:"file_id"`
	Status    string `json:"status"`
	Stage     string `json:"stage,omitempty"`
	DraftID   string `json:"draft_id,omitempty"`
	Attempts  int    `json:"attempts"`
	Reason    string `json:"reason,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

// Jobs handles GET /jobs with an optional status filter.
func (h *Handler) Jobs(w http.ResponseWriter, r *http.Request) {
	var statuses []store.FileStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, ok := store.ParseFileStatus(raw)
		if !ok {
			writeError(w, h.logger, services.Wrap(services.ErrValidation, "api", "list_jobs",
				fmt.Sprintf("unknown status %q", raw), nil))
			return
		}
		statuses = append(statuses, status)
	}

	records, err := h.store.ListRecords(r.Context(), statuses...)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	views := make([]jobView, 0, len(records))
	for _, record := range records {
		views = append(views, jobView{
			FileID:    record.FileID,
			Status:    string(record.Status),
			Stage:     record.Stage,
			DraftID:   record.DraftID,
			Attempts:  record.Attempts,
			Reason:    record.Reason,
			UpdatedAt: record.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

// RetryJob handles POST /jobs/{fileID}/retry: re-enqueues a failed file
// using the stored audio copy, or the source folder when none survives.
func (h *Handler) RetryJob(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	record, err := h.store.Record(r.Context(), fileID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if record.Status != store.FileFailed {
		writeError(w, h.logger, services.Wrap(services.ErrConflict, "api", "retry_job",
			fmt.Sprintf("file %s is %s, only failed files can be retried", fileID, record.Status), nil))
		return
	}

	job := pipeline.Job{FileID: fileID}
	if path, ok := h.storedAudio(fileID); ok {
		job.LocalPath = path
		job.Name = filepath.Base(path)
	} else if h.detector == nil {
		writeError(w, h.logger, services.Wrap(services.ErrConfiguration, "api", "retry_job",
			fmt.Sprintf("no stored audio for %s and folder watching is disabled", fileID), nil))
		return
	}

	if !h.queue.Enqueue(job) {
		writeError(w, h.logger, services.Wrap(services.ErrTransient, "api", "retry_job",
			"pipeline queue is full", nil))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": true,
		"file_id":  fileID,
		"draft_id": pipeline.DeriveDraftID(fileID),
	})
}

// storedAudio finds the audio copy the ingest stage keeps under the upload
// directory, whatever extension it carried.
func (h *Handler) storedAudio(fileID string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(h.cfg.UploadDir(), fileID+".*"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	for _, match := range matches {
		if info, statErr := os.Stat(match); statErr == nil && info.Mode().IsRegular() {
			return match, true
		}
	}
	return "", false
}

type taskView struct {
	DraftID     string `json:"draft_id"`
	Index       int    `json:"index"`
	Description string `json:"description"`
	Assignee    string `json:"assignee,omitempty"`
	Due         string `json:"due,omitempty"`
	Completed   bool   `json:"completed"`
}

// Tasks handles GET /tasks, listing open action items across drafts.
func (h *Handler) Tasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.store.OpenTasks(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	views := make([]taskView, 0, len(tasks))
	for _, task := range tasks {
		due := task.DueRaw
		if task.DueAt != nil {
			due = task.DueAt.Format("2006-01-02 15:04")
		}
		views = append(views, taskView{
			DraftID:     task.DraftID,
			Index:       task.Index,
			Description: task.Description,
			Assignee:    task.Assignee,
			Due:         due,
			Completed:   task.Completed,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": views})
}
