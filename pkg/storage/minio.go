package storage

import (
	"bytes"
	"context"
	"fmt"

	"gato-backoffice/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

type MinioStore struct {
	urlMapper
	client *minio.Client
	bucket string
}

func NewMinioStore(ctx context.Context, c *config.Config) (*MinioStore, error) {
	client, err := minio.New(c.Storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Storage.AccessKey, c.Storage.SecretKey, ""),
		Secure: c.Storage.Secure,
		Region: c.Storage.Region,
	})
	if err != nil {
		zap.L().Error("failed to create MinIO client", zap.Error(err))
		return nil, err
	}

	exists, err := client.BucketExists(ctx, c.Storage.Bucket)
	if err != nil {
		zap.L().Error("failed to check if bucket exists", zap.String("bucket", c.Storage.Bucket), zap.Error(err))
		return nil, err
	}
	zap.L().Info("MinIO client initialized", zap.String("endpoint", c.Storage.Endpoint), zap.Bool("bucketExists", exists))

	public := c.Storage.PublicURL
	if public == "" {
		scheme := "http"
		if c.Storage.Secure {
			scheme = "https"
		}
		public = fmt.Sprintf("%s://%s/%s", scheme, c.Storage.Endpoint, c.Storage.Bucket)
	}

	return &MinioStore{urlMapper: newURLMapper(public), client: client, bucket: c.Storage.Bucket}, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("minio put %s: %w", key, err)
	}
	return s.URL(key), nil
}

func (s *MinioStore) DeleteMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	objects := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		objects <- minio.ObjectInfo{Key: k}
	}
	close(objects)

	var firstErr error
	for rerr := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		if minio.ToErrorResponse(rerr.Err).Code == "NoSuchKey" {
			continue
		}
		zap.L().Warn("failed to remove object", zap.String("key", rerr.ObjectName), zap.Error(rerr.Err))
		if firstErr == nil {
			firstErr = fmt.Errorf("minio delete %s: %w", rerr.ObjectName, rerr.Err)
		}
	}
	return firstErr
}
