package repositories

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/gabriel-vasile/mimetype"

	"mentorlink/contract"
)

// GCSBlobStorage uploads attachment bytes to a Cloud Storage bucket and
// returns the public object URL.
type GCSBlobStorage struct {
	bucket     *storage.BucketHandle
	bucketName string
}

func NewGCSBlobStorage(client *storage.Client, bucketName string) *GCSBlobStorage {
	return &GCSBlobStorage{bucket: client.Bucket(bucketName), bucketName: bucketName}
}

func (s *GCSBlobStorage) Upload(ctx context.Context, data []byte, path string) (string, error) {
	w := s.bucket.Object(path).NewWriter(ctx)
	w.ContentType = mimetype.Detect(data).String()
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucketName, path), nil
}

var _ contract.BlobStorage = (*GCSBlobStorage)(nil)
