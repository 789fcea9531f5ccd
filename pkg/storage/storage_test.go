package storage

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upload struct {
	key, contentType, cacheControl, body string
}

type fakeUploader struct {
	mu      sync.Mutex
	uploads []upload
	err     error
}

func (f *fakeUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}

	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploads = append(f.uploads, upload{
		key:          aws.ToString(in.Key),
		contentType:  aws.ToString(in.ContentType),
		cacheControl: aws.ToString(in.CacheControl),
		body:         string(b),
	})

	return &manager.UploadOutput{}, nil
}

func TestPublish(t *testing.T) {
	up := &fakeUploader{}
	s := &S3{Bucket: aws.String("assets"), up: up}

	fsys := fstest.MapFS{
		"css/accounts.css": {Data: []byte("body{}")},
		"img/logo.png":     {Data: []byte("png")},
	}

	n, err := s.Publish(context.Background(), fsys, "/static/")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, up.uploads, 2)
	assert.Equal(t, "static/css/accounts.css", up.uploads[0].key)
	assert.Contains(t, up.uploads[0].contentType, "text/css")
	assert.Equal(t, StaticCacheControl, up.uploads[0].cacheControl)
	assert.Equal(t, "body{}", up.uploads[0].body)
	assert.Equal(t, "static/img/logo.png", up.uploads[1].key)
	assert.Equal(t, "image/png", up.uploads[1].contentType)
}

func TestPublishStopsOnError(t *testing.T) {
	s := &S3{Bucket: aws.String("assets"), up: &fakeUploader{err: errors.New("boom")}}

	_, err := s.Publish(context.Background(), fstest.MapFS{"a.css": {Data: []byte("x")}}, "static")
	assert.ErrorContains(t, err, "failed to upload static/a.css")
}

func TestPublicURL(t *testing.T) {
	s := &S3{Bucket: aws.String("assets"), cfg: Config{Region: "eu-west-1"}}
	assert.Equal(t, "https://assets.s3.eu-west-1.amazonaws.com/static/", s.PublicURL("static"))
	assert.Equal(t, "https://assets.s3.eu-west-1.amazonaws.com/", s.PublicURL(""))

	s.cfg.Endpoint = "http://localhost:9000/"
	assert.Equal(t, "http://localhost:9000/assets/static/", s.PublicURL("/static/"))
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), Config{})
	assert.Error(t, err)
}
