// Package storage keeps test papers and answer files.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStorage is a flat key/value blob store.
type ObjectStorage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig, log zerolog.Logger) (ObjectStorage, error) {
	switch cfg.Backend {
	case "", "local":
		log.Info().Str("dir", cfg.UploadDir).Msg("Using local object storage")
		return NewLocal(cfg.UploadDir)
	case "minio":
		m, err := NewMinio(cfg)
		if err != nil {
			return nil, fmt.Errorf("create minio client: %w", err)
		}
		if err := m.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
		log.Info().Str("endpoint", cfg.MinioEndpoint).Str("bucket", cfg.MinioBucket).Msg("Using MinIO object storage")
		return m, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// PaperKey is the object key of a test's PDF paper.
func PaperKey(testID string) string {
	return fmt.Sprintf("papers/%s.pdf", testID)
}

// SubmissionKey is the object key of one uploaded answer file. objectID
// keeps concurrent uploads for the same student from overwriting each other.
func SubmissionKey(testID string, studentID int, objectID, ext string) string {
	return fmt.Sprintf("submissions/%s/%d/%s%s", testID, studentID, objectID, ext)
}
