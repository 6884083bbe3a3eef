package model

import (
	"time"

	"github.com/google/uuid"
)

// Image represents one uploaded file registered against its storage key.
// Rows are immutable after creation; the storage key is globally unique.
type Image struct {
	ID          uuid.UUID `json:"id"`
	UserID      int64     `json:"user_id"`
	StorageKey  string    `json:"storage_key"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	CreatedAt   time.Time `json:"created_at"`
}

// ImageMeta carries the optional metadata known at registration time.
type ImageMeta struct {
	Filename    string
	ContentType string
	Size        int64
	Width       int
	Height      int
}
