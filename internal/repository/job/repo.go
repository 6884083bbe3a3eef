package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/wb-go/wbf/dbpg"

	"github.com/aliskhannn/album-curator/internal/model"
)

var (
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when a conditional status update
	// matches no row because the job is not in the expected prior status.
	// Duplicate queue deliveries surface here instead of double-executing.
	ErrInvalidTransition = errors.New("job is not in the expected status")
)

type Repository struct {
	db *dbpg.DB
}

func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new job in status "pending". The key list is fixed at
// creation and never mutated afterwards.
func (r *Repository) Create(ctx context.Context, userID int64, imageKeys []string) (model.Job, error) {
	query := `
		INSERT INTO processing_jobs (id, user_id, status, image_keys)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	j := model.Job{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    model.StatusPending,
		ImageKeys: imageKeys,
	}

	err := r.db.Master.QueryRowContext(
		ctx, query, j.ID, j.UserID, j.Status, pq.Array(j.ImageKeys),
	).Scan(&j.CreatedAt)
	if err != nil {
		return model.Job{}, fmt.Errorf("create: failed to insert job: %w", err)
	}

	return j, nil
}

// GetByID returns the job with the given id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (model.Job, error) {
	query := `
		SELECT user_id, status, image_keys, result_data, error_message,
		       created_at, started_at, completed_at
		FROM processing_jobs
		WHERE id = $1
	`

	var (
		j      model.Job
		result []byte
	)
	j.ID = id

	err := r.db.Master.QueryRowContext(ctx, query, id).Scan(
		&j.UserID, &j.Status, pq.Array(&j.ImageKeys), &result,
		&j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Job{}, ErrJobNotFound
		}

		return model.Job{}, fmt.Errorf("get: failed to get job: %w", err)
	}

	if len(result) > 0 {
		j.ResultData = json.RawMessage(result)
	}

	return j, nil
}

// MarkProcessing transitions the job from "pending" to "processing" and
// stamps started_at. The update is conditional on the prior status, so
// only one of several concurrent deliveries can win the transition.
func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE processing_jobs
		SET status = $1, started_at = now()
		WHERE id = $2 AND status = $3
	`

	return r.transition(ctx, id, query, model.StatusProcessing, id, model.StatusPending)
}

// MarkFailed transitions the job from "processing" to "failed", stamping
// completed_at and recording the error message.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, msg string) error {
	query := `
		UPDATE processing_jobs
		SET status = $1, error_message = $2, completed_at = now()
		WHERE id = $3 AND status = $4
	`

	return r.transition(ctx, id, query, model.StatusFailed, msg, id, model.StatusProcessing)
}

// transition executes a conditional status update and maps a zero-row
// result to ErrJobNotFound or ErrInvalidTransition.
func (r *Repository) transition(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition: failed to update job status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition: failed to get number of rows affected: %w", err)
	}

	if n == 0 {
		if _, err := r.GetByID(ctx, id); errors.Is(err, ErrJobNotFound) {
			return ErrJobNotFound
		}
		return ErrInvalidTransition
	}

	return nil
}
