package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/album-curator/internal/curator"
	"github.com/aliskhannn/album-curator/internal/model"
	jobrepo "github.com/aliskhannn/album-curator/internal/repository/job"
)

// ErrJobNotFound is returned when the callback references a job id that
// does not exist in the store.
var ErrJobNotFound = errors.New("job not found")

// jobRepository defines the job store operations used by the pipeline.
type jobRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.Job, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, msg string) error
}

// imageRegistry resolves registered images for storage keys.
type imageRegistry interface {
	GetByKeys(ctx context.Context, storageKeys []string) ([]model.Image, error)
}

// albumStore materializes proposals and reads albums back.
type albumStore interface {
	Materialize(ctx context.Context, userID int64, jobID uuid.UUID, proposal model.Proposal, images []model.Image) ([]model.Album, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]model.AlbumWithImages, error)
}

// objectStorage issues time-limited read URLs for storage keys.
type objectStorage interface {
	PresignedURL(ctx context.Context, storageKey string) (string, error)
}

// batchCurator proposes album groupings for a batch of images.
type batchCurator interface {
	Curate(ctx context.Context, images []curator.SourceImage) (model.Proposal, error)
}

// Service executes one processing job to completion. It is the only
// writer of job status transitions: pending → processing → completed or
// failed, both terminal. Deliveries are at-least-once, so every step
// must tolerate running against a job another delivery already claimed.
type Service struct {
	jobs    jobRepository
	images  imageRegistry
	albums  albumStore
	storage objectStorage
	curator batchCurator
}

// NewService creates a new Service. All collaborators are injected;
// there are no process-global clients.
func NewService(jobs jobRepository, images imageRegistry, albums albumStore, storage objectStorage, c batchCurator) *Service {
	return &Service{
		jobs:    jobs,
		images:  images,
		albums:  albums,
		storage: storage,
		curator: c,
	}
}

// Process drives one delivered task through the pipeline and returns
// the number of albums recorded for the job.
//
// A duplicate delivery that loses the pending→processing race is
// acknowledged without re-executing: the winner's result (or in-flight
// work) stands, and the current album count is reported.
func (s *Service) Process(ctx context.Context, task model.Task) (int, error) {
	j, err := s.jobs.GetByID(ctx, task.JobID)
	if err != nil {
		if errors.Is(err, jobrepo.ErrJobNotFound) {
			return 0, ErrJobNotFound
		}
		return 0, fmt.Errorf("process: failed to load job: %w", err)
	}

	if err := s.jobs.MarkProcessing(ctx, j.ID); err != nil {
		if errors.Is(err, jobrepo.ErrInvalidTransition) {
			return s.ackDuplicate(ctx, j.ID)
		}
		return 0, fmt.Errorf("process: failed to mark job processing: %w", err)
	}

	albums, err := s.run(ctx, j)
	if err != nil {
		s.fail(ctx, j.ID, err)
		return 0, fmt.Errorf("process: %w", err)
	}

	return albums, nil
}

// run executes the steps after the job is claimed. Any error it returns
// is non-recoverable and fails the job; curator errors never escape it.
func (s *Service) run(ctx context.Context, j model.Job) (int, error) {
	// The persisted key list is authoritative; the queue message only
	// carries a copy of it.
	images, err := s.images.GetByKeys(ctx, j.ImageKeys)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve images: %w", err)
	}

	sources := make([]curator.SourceImage, 0, len(images))
	for _, img := range images {
		readURL, err := s.storage.PresignedURL(ctx, img.StorageKey)
		if err != nil {
			return 0, fmt.Errorf("failed to presign %s: %w", img.StorageKey, err)
		}
		sources = append(sources, curator.SourceImage{
			StorageKey: img.StorageKey,
			ReadURL:    readURL,
		})
	}

	proposal, err := s.curator.Curate(ctx, sources)
	if err != nil {
		// Fallback policy: the model failing to produce a valid proposal
		// is not a job failure. The whole batch lands in one album.
		zlog.Logger.Warn().
			Err(err).
			Str("job_id", j.ID.String()).
			Msg("curator failed, substituting fallback proposal")
		proposal = curator.Fallback(j.ImageKeys)
	}

	albums, err := s.albums.Materialize(ctx, j.UserID, j.ID, proposal, images)
	if err != nil {
		if errors.Is(err, jobrepo.ErrInvalidTransition) {
			// Another delivery finished the job while this one was
			// working; its albums were rolled back. Ack with the
			// winner's result.
			return s.ackDuplicate(ctx, j.ID)
		}
		return 0, fmt.Errorf("failed to materialize albums: %w", err)
	}

	zlog.Logger.Info().
		Str("job_id", j.ID.String()).
		Int("albums", len(albums)).
		Msg("job completed")

	return len(albums), nil
}

// ackDuplicate reports the albums already recorded for a job this
// delivery did not get to execute.
func (s *Service) ackDuplicate(ctx context.Context, jobID uuid.UUID) (int, error) {
	zlog.Logger.Info().
		Str("job_id", jobID.String()).
		Msg("duplicate delivery, job already claimed")

	albums, err := s.albums.ListByJob(ctx, jobID)
	if err != nil {
		return 0, fmt.Errorf("process: failed to list albums for claimed job: %w", err)
	}

	return len(albums), nil
}

// fail moves the job to its terminal failed state. A failed transition
// here means another delivery already finished the job, which is fine.
func (s *Service) fail(ctx context.Context, jobID uuid.UUID, cause error) {
	if err := s.jobs.MarkFailed(ctx, jobID, cause.Error()); err != nil {
		if errors.Is(err, jobrepo.ErrInvalidTransition) {
			return
		}
		zlog.Logger.Error().
			Err(err).
			Str("job_id", jobID.String()).
			Msg("failed to mark job failed")
	}
}
