package album

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	jobrepo "github.com/aliskhannn/album-curator/internal/repository/job"

	"github.com/aliskhannn/album-curator/internal/model"
)

type Repository struct {
	db *dbpg.DB
}

func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// Materialize turns a proposal into persisted album rows and image links,
// then transitions the job from "processing" to "completed" with the
// proposal stored verbatim as result_data. Everything runs in one
// transaction: a failure anywhere rolls back all album state, and a lost
// transition race rolls back without touching anything.
//
// Proposal keys with no matching registered image are dropped silently.
// Link inserts are idempotent on the (album, image) pair.
func (r *Repository) Materialize(
	ctx context.Context,
	userID int64,
	jobID uuid.UUID,
	proposal model.Proposal,
	images []model.Image,
) ([]model.Album, error) {
	resultData, err := json.Marshal(proposal)
	if err != nil {
		return nil, fmt.Errorf("materialize: failed to marshal proposal: %w", err)
	}

	byKey := make(map[string]model.Image, len(images))
	for _, img := range images {
		byKey[img.StorageKey] = img
	}

	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("materialize: failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op once committed

	albumQuery := `
		INSERT INTO albums (user_id, job_id, title, theme)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	linkQuery := `
		INSERT INTO album_images (album_id, image_id, display_order)
		VALUES ($1, $2, $3)
		ON CONFLICT (album_id, image_id) DO NOTHING
	`

	albums := make([]model.Album, 0, len(proposal.Albums))
	for _, entry := range proposal.Albums {
		a := model.Album{
			UserID: userID,
			JobID:  jobID,
			Title:  entry.Title,
			Theme:  entry.Theme,
		}

		err := tx.QueryRowContext(ctx, albumQuery, userID, jobID, entry.Title, entry.Theme).
			Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("materialize: failed to insert album: %w", err)
		}

		order := 0
		for _, key := range entry.ImageKeys {
			img, ok := byKey[key]
			if !ok {
				continue
			}

			if _, err := tx.ExecContext(ctx, linkQuery, a.ID, img.ID, order); err != nil {
				return nil, fmt.Errorf("materialize: failed to link image: %w", err)
			}
			order++
		}

		albums = append(albums, a)
	}

	completeQuery := `
		UPDATE processing_jobs
		SET status = $1, result_data = $2, completed_at = now()
		WHERE id = $3 AND status = $4
	`

	// string, not []byte: the driver would send raw bytes as bytea,
	// which the jsonb column rejects.
	res, err := tx.ExecContext(ctx, completeQuery, model.StatusCompleted, string(resultData), jobID, model.StatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("materialize: failed to complete job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("materialize: failed to get number of rows affected: %w", err)
	}
	if n == 0 {
		return nil, jobrepo.ErrInvalidTransition
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("materialize: failed to commit transaction: %w", err)
	}

	return albums, nil
}

// ListByJob returns the albums created for a job together with their
// images ordered by display_order.
func (r *Repository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]model.AlbumWithImages, error) {
	albumQuery := `
		SELECT id, user_id, title, theme, created_at, updated_at
		FROM albums
		WHERE job_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.db.Master.QueryContext(ctx, albumQuery, jobID)
	if err != nil {
		return nil, fmt.Errorf("list: failed to query albums: %w", err)
	}
	defer rows.Close()

	var albums []model.AlbumWithImages
	for rows.Next() {
		a := model.AlbumWithImages{}
		a.JobID = jobID
		if err := rows.Scan(&a.ID, &a.UserID, &a.Title, &a.Theme, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list: failed to scan album: %w", err)
		}
		albums = append(albums, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list: failed to iterate albums: %w", err)
	}

	imageQuery := `
		SELECT i.id, i.user_id, i.storage_key, i.filename, i.content_type,
		       i.size, i.width, i.height, i.created_at
		FROM album_images ai
		JOIN images i ON i.id = ai.image_id
		WHERE ai.album_id = $1
		ORDER BY ai.display_order
	`

	for idx := range albums {
		imgRows, err := r.db.Master.QueryContext(ctx, imageQuery, albums[idx].ID)
		if err != nil {
			return nil, fmt.Errorf("list: failed to query album images: %w", err)
		}

		for imgRows.Next() {
			var img model.Image
			if err := imgRows.Scan(
				&img.ID, &img.UserID, &img.StorageKey, &img.Filename, &img.ContentType,
				&img.Size, &img.Width, &img.Height, &img.CreatedAt,
			); err != nil {
				imgRows.Close()
				return nil, fmt.Errorf("list: failed to scan album image: %w", err)
			}
			albums[idx].Images = append(albums[idx].Images, img)
		}
		if err := imgRows.Err(); err != nil {
			imgRows.Close()
			return nil, fmt.Errorf("list: failed to iterate album images: %w", err)
		}
		imgRows.Close()
	}

	return albums, nil
}
