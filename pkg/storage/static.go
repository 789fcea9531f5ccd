package storage

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const StaticCacheControl = "max-age=86400"

// Publish uploads every file in fsys under prefix and returns how many
// were uploaded. Existing objects are overwritten.
func (s *S3) Publish(ctx context.Context, fsys fs.FS, prefix string) (int, error) {
	prefix = strings.Trim(prefix, "/")
	n := 0

	err := fs.WalkDir(fsys, ".", func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if e.IsDir() {
			return nil
		}

		f, err := fsys.Open(p)
		if err != nil {
			return fmt.Errorf("failed to open %s, %w", p, err)
		}
		defer f.Close()

		key := p
		if prefix != "" {
			key = prefix + "/" + p
		}

		input := &s3.PutObjectInput{
			Bucket:       s.Bucket,
			Key:          aws.String(key),
			Body:         f,
			CacheControl: aws.String(StaticCacheControl),
		}

		if ct := mime.TypeByExtension(path.Ext(p)); ct != "" {
			input.ContentType = aws.String(ct)
		}

		if _, err := s.up.Upload(ctx, input); err != nil {
			return fmt.Errorf("failed to upload %s, %w", key, err)
		}

		zap.L().Debug("Uploaded static file", zap.String("key", key))
		n++

		return nil
	})

	return n, err
}
