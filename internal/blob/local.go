package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"labflow/internal/util"
)

// LocalStore keeps objects as files under Root. Content types are not recorded.
type LocalStore struct {
	Root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if err := util.EnsureDir(root); err != nil {
		return nil, err
	}
	return &LocalStore{Root: root}, nil
}

func (s *LocalStore) Download(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrDownloadFailed, err)
	}
	path, err := util.SafeJoin(s.Root, locator)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrDownloadFailed, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", util.ErrDownloadFailed, locator, err)
	}
	return data, nil
}

func (s *LocalStore) Upload(ctx context.Context, locator string, data []byte, opts UploadOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := util.SafeJoin(s.Root, locator)
	if err != nil {
		return err
	}
	if !opts.Upsert {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("upload %s: %w", locator, ErrAlreadyExists)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", locator, err)
		}
	}
	return util.WriteFileAtomic(path, data)
}
