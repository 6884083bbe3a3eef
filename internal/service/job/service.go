package job

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/album-curator/internal/model"
)

var (
	ErrEmptyBatch    = errors.New("image keys must not be empty")
	ErrBatchTooLarge = errors.New("image keys exceed the maximum batch size")
	ErrInvalidUser   = errors.New("user id must be positive")
)

// jobRepository defines the job store operations used by submission.
type jobRepository interface {
	Create(ctx context.Context, userID int64, imageKeys []string) (model.Job, error)
}

// imageRegistry defines the idempotent image registration operation.
type imageRegistry interface {
	Ensure(ctx context.Context, userID int64, storageKey string, meta model.ImageMeta) (model.Image, error)
}

// dispatcher defines the interface for handing a job off to the queue.
type dispatcher interface {
	Enqueue(ctx context.Context, task model.Task) error
}

// Service accepts new processing jobs: it registers the referenced
// images, persists the job, and dispatches it for background execution.
type Service struct {
	jobs         jobRepository
	images       imageRegistry
	queue        dispatcher
	maxBatchSize int
}

// NewService creates a new Service with the given dependencies.
func NewService(jobs jobRepository, images imageRegistry, queue dispatcher, maxBatchSize int) *Service {
	return &Service{
		jobs:         jobs,
		images:       images,
		queue:        queue,
		maxBatchSize: maxBatchSize,
	}
}

// Submit creates a pending job for the given batch of storage keys and
// enqueues it. Registration of the images is idempotent, so resubmitting
// overlapping key sets is safe. If the enqueue itself fails, the created
// job stays pending with no automatic compensation; the error is
// surfaced to the caller and the orphaned job id is logged.
func (s *Service) Submit(ctx context.Context, userID int64, imageKeys []string) (model.Job, error) {
	if userID <= 0 {
		return model.Job{}, ErrInvalidUser
	}
	if len(imageKeys) == 0 {
		return model.Job{}, ErrEmptyBatch
	}
	if len(imageKeys) > s.maxBatchSize {
		return model.Job{}, fmt.Errorf("%w: got %d, max %d", ErrBatchTooLarge, len(imageKeys), s.maxBatchSize)
	}

	for _, key := range imageKeys {
		meta := model.ImageMeta{Filename: path.Base(key)}
		if _, err := s.images.Ensure(ctx, userID, key, meta); err != nil {
			return model.Job{}, fmt.Errorf("submit: failed to register image %s: %w", key, err)
		}
	}

	j, err := s.jobs.Create(ctx, userID, imageKeys)
	if err != nil {
		return model.Job{}, fmt.Errorf("submit: failed to create job: %w", err)
	}

	task := model.Task{
		JobID:     j.ID,
		UserID:    j.UserID,
		ImageKeys: j.ImageKeys,
	}

	if err := s.queue.Enqueue(ctx, task); err != nil {
		zlog.Logger.Error().
			Err(err).
			Str("job_id", j.ID.String()).
			Msg("job dispatch failed, job left pending")
		return model.Job{}, fmt.Errorf("submit: failed to enqueue job: %w", err)
	}

	return j, nil
}
