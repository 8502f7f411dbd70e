// Package blob stores uploaded report files by locator.
package blob

import (
	"context"
	"errors"
)

// ErrAlreadyExists is returned by Upload when the object exists and Upsert is false.
var ErrAlreadyExists = errors.New("blob already exists")

type UploadOptions struct {
	ContentType string
	Upsert      bool
}

// Store is the object store the pipeline downloads file bytes from. Download
// failures wrap util.ErrDownloadFailed.
type Store interface {
	Download(ctx context.Context, locator string) ([]byte, error)
	Upload(ctx context.Context, locator string, data []byte, opts UploadOptions) error
}
