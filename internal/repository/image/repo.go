package image

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/wb-go/wbf/dbpg"

	"github.com/aliskhannn/album-curator/internal/model"
)

var ErrImageNotFound = errors.New("image not found")

type Repository struct {
	db *dbpg.DB
}

func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// Ensure registers an image row for the given storage key if one does not
// exist yet. A conflicting insert is a no-op and the existing row is
// returned untouched, which makes job submission safe to retry with
// overlapping key sets.
func (r *Repository) Ensure(ctx context.Context, userID int64, storageKey string, meta model.ImageMeta) (model.Image, error) {
	query := `
		INSERT INTO images (user_id, storage_key, filename, content_type, size, width, height)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (storage_key) DO NOTHING
		RETURNING id, created_at
	`

	img := model.Image{
		UserID:      userID,
		StorageKey:  storageKey,
		Filename:    meta.Filename,
		ContentType: meta.ContentType,
		Size:        meta.Size,
		Width:       meta.Width,
		Height:      meta.Height,
	}

	err := r.db.Master.QueryRowContext(
		ctx, query, userID, storageKey, meta.Filename, meta.ContentType, meta.Size, meta.Width, meta.Height,
	).Scan(&img.ID, &img.CreatedAt)
	if err == nil {
		return img, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Image{}, fmt.Errorf("ensure: failed to insert image: %w", err)
	}

	// Key already registered; return the canonical row.
	existing, err := r.GetByKey(ctx, storageKey)
	if err != nil {
		return model.Image{}, fmt.Errorf("ensure: %w", err)
	}

	return existing, nil
}

// GetByKey returns the image registered for the given storage key.
func (r *Repository) GetByKey(ctx context.Context, storageKey string) (model.Image, error) {
	query := `
		SELECT id, user_id, storage_key, filename, content_type, size, width, height, created_at
		FROM images
		WHERE storage_key = $1
	`

	var img model.Image
	err := r.db.Master.QueryRowContext(ctx, query, storageKey).Scan(
		&img.ID, &img.UserID, &img.StorageKey, &img.Filename, &img.ContentType,
		&img.Size, &img.Width, &img.Height, &img.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Image{}, ErrImageNotFound
		}

		return model.Image{}, fmt.Errorf("get: failed to get image: %w", err)
	}

	return img, nil
}

// GetByKeys resolves the subset of the given keys that are registered,
// preserving the order of the input. Unknown keys are dropped silently.
func (r *Repository) GetByKeys(ctx context.Context, storageKeys []string) ([]model.Image, error) {
	if len(storageKeys) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, user_id, storage_key, filename, content_type, size, width, height, created_at
		FROM images
		WHERE storage_key = ANY($1)
	`

	rows, err := r.db.Master.QueryContext(ctx, query, pq.Array(storageKeys))
	if err != nil {
		return nil, fmt.Errorf("get: failed to query images: %w", err)
	}
	defer rows.Close()

	byKey := make(map[string]model.Image, len(storageKeys))
	for rows.Next() {
		var img model.Image
		if err := rows.Scan(
			&img.ID, &img.UserID, &img.StorageKey, &img.Filename, &img.ContentType,
			&img.Size, &img.Width, &img.Height, &img.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("get: failed to scan image: %w", err)
		}
		byKey[img.StorageKey] = img
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get: failed to iterate images: %w", err)
	}

	images := make([]model.Image, 0, len(byKey))
	for _, key := range storageKeys {
		if img, ok := byKey[key]; ok {
			images = append(images, img)
		}
	}

	return images, nil
}
