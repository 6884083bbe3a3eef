package job

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/album-curator/internal/api/respond"
	"github.com/aliskhannn/album-curator/internal/model"
	jobrepo "github.com/aliskhannn/album-curator/internal/repository/job"
	jobsvc "github.com/aliskhannn/album-curator/internal/service/job"
	"github.com/aliskhannn/album-curator/internal/service/pipeline"
)

// SecretHeader carries the shared secret on every callback delivery.
const SecretHeader = "X-API-Secret"

// submitter accepts new processing jobs.
type submitter interface {
	Submit(ctx context.Context, userID int64, imageKeys []string) (model.Job, error)
}

// processor executes one delivered task to completion.
type processor interface {
	Process(ctx context.Context, task model.Task) (int, error)
}

// jobReader reads persisted jobs for the status endpoint.
type jobReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.Job, error)
}

// albumReader reads materialized albums for the gallery endpoint.
type albumReader interface {
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]model.AlbumWithImages, error)
}

// Handler provides HTTP handlers for job submission, the pipeline
// callback, status polling, and gallery fetch.
type Handler struct {
	submitter submitter
	processor processor
	jobs      jobReader
	albums    albumReader
	secret    string
}

// NewHandler creates a new Handler with the given services.
func NewHandler(s submitter, p processor, jobs jobReader, albums albumReader, secret string) *Handler {
	return &Handler{
		submitter: s,
		processor: p,
		jobs:      jobs,
		albums:    albums,
		secret:    secret,
	}
}

// CreateRequest is the job-submission payload.
type CreateRequest struct {
	UserID    int64    `json:"user_id"`
	ImageKeys []string `json:"image_keys"`
}

// Create handles job submission: it registers the images, persists a
// pending job, schedules background processing, and responds 202 with
// the job id for polling.
func (h *Handler) Create(c *ginext.Context) {
	var req CreateRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	j, err := h.submitter.Submit(c.Request.Context(), req.UserID, req.ImageKeys)
	if err != nil {
		switch {
		case errors.Is(err, jobsvc.ErrInvalidUser),
			errors.Is(err, jobsvc.ErrEmptyBatch),
			errors.Is(err, jobsvc.ErrBatchTooLarge):
			respond.Fail(c, http.StatusBadRequest, err)
		default:
			zlog.Logger.Err(err).Msg("failed to submit job")
			respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to submit job"))
		}
		return
	}

	respond.Accepted(c, map[string]interface{}{
		"job_id": j.ID,
	})
}

// CallbackRequest is the payload the queue delivers to the worker.
type CallbackRequest struct {
	JobID     string   `json:"job_id"`
	UserID    int64    `json:"user_id"`
	ImageKeys []string `json:"image_keys"`
}

// ProcessCallback is the pipeline entry point. It authenticates the
// delivery, validates the payload, and drives the job to a terminal
// state. A 5xx response tells the queue provider to redeliver; 4xx
// responses are final.
func (h *Handler) ProcessCallback(c *ginext.Context) {
	secret := c.GetHeader(SecretHeader)
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.secret)) != 1 {
		respond.Fail(c, http.StatusUnauthorized, fmt.Errorf("invalid or missing secret"))
		return
	}

	var req CallbackRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	jobID, err := uuid.Parse(req.JobID)
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid job id"))
		return
	}
	if req.UserID <= 0 {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid user id"))
		return
	}
	if len(req.ImageKeys) == 0 {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("image keys must not be empty"))
		return
	}

	task := model.Task{
		JobID:     jobID,
		UserID:    req.UserID,
		ImageKeys: req.ImageKeys,
	}

	albumsCreated, err := h.processor.Process(c.Request.Context(), task)
	if err != nil {
		if errors.Is(err, pipeline.ErrJobNotFound) {
			// No such job exists; redelivery cannot change that.
			respond.Fail(c, http.StatusNotFound, err)
			return
		}

		zlog.Logger.Err(err).
			Str("job_id", jobID.String()).
			Msg("pipeline execution failed")
		respond.Fail(c, http.StatusInternalServerError, err)
		return
	}

	respond.JSON(c, http.StatusOK, map[string]interface{}{
		"success":        true,
		"job_id":         jobID,
		"albums_created": albumsCreated,
	})
}

// StatusResponse is the poll payload for one job.
type StatusResponse struct {
	JobID       uuid.UUID       `json:"job_id"`
	Status      model.JobStatus `json:"status"`
	CreatedAt   string          `json:"created_at"`
	CompletedAt string          `json:"completed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
	ResultURL   string          `json:"result_url,omitempty"`
}

// Status translates a job's persisted state into the client-facing poll
// response. An id that cannot name a job (malformed or unknown) is a 404.
func (h *Handler) Status(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("job not found"))
		return
	}

	j, err := h.jobs.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, jobrepo.ErrJobNotFound) {
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("job not found"))
			return
		}

		zlog.Logger.Err(err).Msg("failed to get job")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to get job"))
		return
	}

	resp := StatusResponse{
		JobID:     j.ID,
		Status:    j.Status,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
	}
	if j.CompletedAt != nil {
		resp.CompletedAt = j.CompletedAt.Format(time.RFC3339)
	}
	if j.ErrorMessage != nil {
		resp.Error = *j.ErrorMessage
	}
	if j.Status == model.StatusCompleted {
		// Constructed pointer to the gallery fetch endpoint, not a
		// stored field.
		resp.ResultURL = fmt.Sprintf("/api/jobs/%s/albums", j.ID)
	}

	respond.OK(c, resp)
}

// Albums serves the materialized albums of a completed job with their
// images in display order.
func (h *Handler) Albums(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("job not found"))
		return
	}

	if _, err := h.jobs.GetByID(c.Request.Context(), id); err != nil {
		if errors.Is(err, jobrepo.ErrJobNotFound) {
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("job not found"))
			return
		}

		zlog.Logger.Err(err).Msg("failed to get job")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to get job"))
		return
	}

	albums, err := h.albums.ListByJob(c.Request.Context(), id)
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to list albums")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to list albums"))
		return
	}

	respond.OK(c, map[string]interface{}{
		"albums": albums,
	})
}
