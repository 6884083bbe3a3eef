package model

import (
	"time"

	"github.com/google/uuid"
)

// Album is one AI-curated (or fallback) grouping of images.
type Album struct {
	ID        uuid.UUID `json:"id"`
	UserID    int64     `json:"user_id"`
	JobID     uuid.UUID `json:"job_id"`
	Title     string    `json:"title"`
	Theme     string    `json:"theme"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AlbumImage links one image into one album. The (album, image) pair is
// unique; display_order is the image's position within the album.
type AlbumImage struct {
	AlbumID      uuid.UUID `json:"album_id"`
	ImageID      uuid.UUID `json:"image_id"`
	DisplayOrder int       `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
}

// AlbumWithImages is the read-side shape served by the gallery endpoint.
type AlbumWithImages struct {
	Album
	Images []Image `json:"images"`
}
