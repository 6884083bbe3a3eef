package file

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Storage provides an S3-compatible object storage backend using MinIO.
// Uploaded photos live in a single bucket, addressed by storage key.
type Storage struct {
	client     *minio.Client
	bucketName string
	urlExpiry  time.Duration
}

// NewStorage creates a new Storage instance connected to the specified MinIO server.
// If the bucket does not exist, it will be created automatically.
func NewStorage(ctx context.Context, endpoint, accessKey, secretKey, bucketName string, useSSL bool, urlExpiry time.Duration) (*Storage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Storage{
		client:     client,
		bucketName: bucketName,
		urlExpiry:  urlExpiry,
	}, nil
}

// Load retrieves the object stored under the given key and returns its bytes.
func (s *Storage) Load(ctx context.Context, storageKey string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, storageKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to load object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}

	return data, nil
}

// PresignedURL returns a time-limited read URL for the given storage key.
func (s *Storage) PresignedURL(ctx context.Context, storageKey string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucketName, storageKey, s.urlExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign object url: %w", err)
	}

	return u.String(), nil
}

// Stat returns the size and content type recorded for the given key.
func (s *Storage) Stat(ctx context.Context, storageKey string) (int64, string, error) {
	info, err := s.client.StatObject(ctx, s.bucketName, storageKey, minio.StatObjectOptions{})
	if err != nil {
		return 0, "", fmt.Errorf("failed to stat object: %w", err)
	}

	return info.Size, info.ContentType, nil
}
