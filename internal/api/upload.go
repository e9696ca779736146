package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"minuteman/internal/logging"
	"minuteman/internal/pipeline"
)

const maxUploadBytes = 200 << 20 // 200 MB of audio

type uploadRequest struct {
	Title   string
	Channel string
}

func (r uploadRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Length(0, 200)),
		validation.Field(&r.Channel, validation.Length(0, 80)),
	)
}

// Upload handles POST /upload: a multipart audio file plus optional title
// and channel overrides. The response carries the derived draft id so the
// caller can track the run before the pipeline finishes.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid multipart request"))
		return
	}

	req := uploadRequest{
		Title:   strings.TrimSpace(r.FormValue("title")),
		Channel: strings.TrimSpace(r.FormValue("channel")),
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("audio file is required"))
		return
	}
	defer file.Close()

	fileID := "upload-" + uuid.NewString()
	ext := filepath.Ext(header.Filename)
	if ext == "" {
		ext = ".m4a"
	}
	if err := os.MkdirAll(h.cfg.UploadDir(), 0o755); err != nil {
		writeError(w, h.logger, fmt.Errorf("create upload dir: %w", err))
		return
	}
	localPath := filepath.Join(h.cfg.UploadDir(), fileID+ext)
	dst, err := os.Create(localPath)
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("create upload file: %w", err))
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeError(w, h.logger, fmt.Errorf("store upload: %w", err))
		return
	}
	if err := dst.Close(); err != nil {
		writeError(w, h.logger, fmt.Errorf("finish upload: %w", err))
		return
	}

	name := header.Filename
	if req.Title != "" {
		name = req.Title + ext
	}
	job := pipeline.Job{
		FileID:    fileID,
		Name:      name,
		LocalPath: localPath,
		Channel:   req.Channel,
	}
	if !h.queue.Enqueue(job) {
		writeJSON(w, http.StatusServiceUnavailable, errResponse{Error: "pipeline queue is full", Retryable: true})
		return
	}

	h.logger.Info("upload accepted",
		logging.String(logging.FieldJobID, fileID),
		logging.String("file_name", header.Filename),
	)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": true,
		"file_id":  fileID,
		"draft_id": pipeline.DeriveDraftID(fileID),
	})
}
