package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"plantroom/pkg/domain"
)

// ObjectStore provides write access to object storage.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// MinioStore implements ObjectStore for MinIO/S3 compatible storage.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

// Put uploads an object.
func (m *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// SnapshotKey is the object key holding the latest snapshot of a room.
func SnapshotKey(roomID string) string {
	return path.Join("rooms", roomID, "latest.json")
}

// PutRoomSnapshot writes room as JSON under SnapshotKey, replacing any
// earlier snapshot.
func PutRoomSnapshot(ctx context.Context, objects ObjectStore, room domain.Room, revision string) error {
	payload, err := json.Marshal(struct {
		Revision string      `json:"revision"`
		Room     domain.Room `json:"room"`
	}{Revision: revision, Room: room})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return objects.Put(ctx, SnapshotKey(room.ID), bytes.NewReader(payload), int64(len(payload)), "application/json")
}
