package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStorage — примитивы внешнего файлового хранилища.
// Save возвращает публичный URL объекта, Delete принимает его же.
type ObjectStorage interface {
	Save(ctx context.Context, filename string, contentType string, data []byte) (fileURL string, err error)
	Delete(ctx context.Context, fileURL string) error
}

type minioStorage struct {
	client     *minio.Client
	bucketName string
	publicBase string
}

func NewMinioStorage(endpoint, accessKey, secretKey string, useSSL bool, bucket, publicBaseURL string) (ObjectStorage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, errBucket := client.BucketExists(ctx, bucket)
	if errBucket != nil {
		return nil, errBucket
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}

	if publicBaseURL == "" {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		publicBaseURL = scheme + "://" + endpoint
	}

	return &minioStorage{
		client:     client,
		bucketName: bucket,
		publicBase: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// Save генерирует уникальный ключ (uuid + исходное расширение),
// чтобы параллельные загрузки не могли столкнуться по имени.
func (s *minioStorage) Save(ctx context.Context, filename string, contentType string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	objectKey := fmt.Sprintf("attachments/%s%s", uuid.New().String(), ext)

	_, err := s.client.PutObject(ctx, s.bucketName, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"filename": filename},
	})
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/%s/%s", s.publicBase, s.bucketName, objectKey), nil
}

func (s *minioStorage) Delete(ctx context.Context, fileURL string) error {
	objectKey, err := s.objectKey(fileURL)
	if err != nil {
		return err
	}
	return s.client.RemoveObject(ctx, s.bucketName, objectKey, minio.RemoveObjectOptions{})
}

func (s *minioStorage) objectKey(fileURL string) (string, error) {
	u, err := url.Parse(fileURL)
	if err != nil {
		return "", fmt.Errorf("invalid file url %q: %w", fileURL, err)
	}
	prefix := "/" + s.bucketName + "/"
	idx := strings.Index(u.Path, prefix)
	if idx < 0 {
		return "", fmt.Errorf("file url %q does not belong to bucket %s", fileURL, s.bucketName)
	}
	key := u.Path[idx+len(prefix):]
	if key == "" {
		return "", fmt.Errorf("file url %q has empty object key", fileURL)
	}
	return key, nil
}
