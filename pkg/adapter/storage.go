package adapter

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// Storage keeps exported session transcripts
type Storage interface {
	// Put uploads the content of r to key. The object becomes visible only after the upload is committed.
	Put(ctx context.Context, key, contentType string, r io.Reader) error
}

// storageClient implements Storage interface using Cloud Storage
type storageClient struct {
	bucketName string
	prefix     string
	client     *storage.Client
}

// NewStorage creates a new Cloud Storage client. Every key is placed under prefix.
func NewStorage(ctx context.Context, bucketName, prefix string) (Storage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &storageClient{
		bucketName: bucketName,
		prefix:     prefix,
		client:     client,
	}, nil
}

func (s *storageClient) object(key string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucketName).Object(s.prefix + key)
}

func (s *storageClient) Put(ctx context.Context, key, contentType string, r io.Reader) error {
	writer := s.object(key).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return goerr.Wrap(err, "failed to write to storage", goerr.V("bucket", s.bucketName), goerr.V("key", key))
	}

	// The upload is committed on Close, so its error is the one that matters
	if err := writer.Close(); err != nil {
		return goerr.Wrap(err, "failed to commit object", goerr.V("bucket", s.bucketName), goerr.V("key", key))
	}
	return nil
}
