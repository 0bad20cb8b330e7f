package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/dmorgan81/beamshim/internal/image"
	"github.com/dmorgan81/beamshim/internal/log"
	"github.com/google/uuid"
)

type UploadParams struct {
	Name        string
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

type Uploader interface {
	Upload(context.Context, UploadParams) error
}

// FileUploader writes archives under Dir, for running without a bucket.
type FileUploader struct {
	Dir string
}

func (u *FileUploader) Upload(ctx context.Context, params UploadParams) error {
	path := filepath.Join(u.Dir, filepath.Base(params.Name))
	log := log.FromContextOrDiscard(ctx).WithGroup("file")
	log.Info("writing", "file", path)
	if err := os.MkdirAll(u.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, params.Data, 0o600)
}

// FileBlobs stores binary images as files and refers to them by absolute path.
type FileBlobs struct {
	Files *FileUploader
}

func (b *FileBlobs) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	name := uuid.NewString() + image.Extension(contentType)
	err := b.Files.Upload(ctx, UploadParams{
		Name:        name,
		Data:        data,
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return filepath.Abs(filepath.Join(b.Files.Dir, name))
}
