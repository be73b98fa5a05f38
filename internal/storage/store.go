package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by GetJSON when the key does not exist.
var ErrNotFound = errors.New("storage: object not found")

// BlobStore persists JSON documents by key.
type BlobStore interface {
	PutJSON(ctx context.Context, key string, v interface{}) error
	GetJSON(ctx context.Context, key string, v interface{}) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type Config struct {
	Type            string // "s3" | "local"
	Path            string
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// New builds the backend selected by cfg.Type.
func New(ctx context.Context, cfg Config) (BlobStore, error) {
	switch cfg.Type {
	case "s3", "":
		return NewS3Store(ctx, cfg)
	case "local":
		return NewLocalStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
