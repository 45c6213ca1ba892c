package port

import (
	"context"
	"io"
)

type MediaStorage interface {
	DownloadMedia(ctx context.Context, objectKey string, destPath string) error
	UploadProtected(ctx context.Context, objectKey string, reader io.Reader, size int64) error
	RemoveMedia(ctx context.Context, objectKey string) error
}
