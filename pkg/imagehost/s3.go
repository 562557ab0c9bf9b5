package imagehost

import (
	"context"
	"io"
	"time"

	"github.com/damoang/angple-chat/pkg/storage"
)

// S3 stores images in an S3-compatible bucket
type S3 struct {
	client *storage.S3Client
	prefix string
	now    func() time.Time
}

// NewS3 creates an uploader backed by an S3 client
func NewS3(client *storage.S3Client, prefix string) *S3 {
	if prefix == "" {
		prefix = "chat-images"
	}
	return &S3{client: client, prefix: prefix, now: time.Now}
}

func (u *S3) Upload(ctx context.Context, filename string, r io.Reader, _ int64, contentType string) (string, error) {
	key := storage.GenerateKey(u.prefix, filename, u.now())
	return u.client.Upload(ctx, key, r, contentType)
}
