package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"labflow/internal/util"
)

type GCSStore struct {
	bucket *storage.BucketHandle
	logger *slog.Logger
}

func NewGCSStore(ctx context.Context, bucketName string, logger *slog.Logger) (*GCSStore, func() error, error) {
	if bucketName == "" {
		return nil, nil, errors.New("gcs bucket name is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create gcs client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GCSStore{bucket: client.Bucket(bucketName), logger: logger}, client.Close, nil
}

func (s *GCSStore) Download(ctx context.Context, locator string) ([]byte, error) {
	r, err := s.bucket.Object(locator).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: open gs object %s: %v", util.ErrDownloadFailed, locator, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read gs object %s: %v", util.ErrDownloadFailed, locator, err)
	}
	return data, nil
}

// Upload writes the object. Without Upsert the write is conditional on the object
// not existing, and a precondition failure maps to ErrAlreadyExists.
func (s *GCSStore) Upload(ctx context.Context, locator string, data []byte, opts UploadOptions) error {
	obj := s.bucket.Object(locator)
	if !opts.Upsert {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}
	w := obj.NewWriter(ctx)
	if opts.ContentType != "" {
		w.ContentType = opts.ContentType
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return s.uploadErr(locator, err)
	}
	if err := w.Close(); err != nil {
		return s.uploadErr(locator, err)
	}
	return nil
}

func (s *GCSStore) uploadErr(locator string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		s.logger.Info("gcs object already exists", "locator", locator)
		return fmt.Errorf("upload %s: %w", locator, ErrAlreadyExists)
	}
	return fmt.Errorf("write gs object %s: %w", locator, err)
}
