package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned by Get for keys the store does not hold.
var ErrNotFound = errors.New("blob not found")

// BlobStore holds calibration files by key.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) (string, error) // returns canonical key
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	SignedURL(ctx context.Context, key string) (string, error) // fs returns "file://..." for dev
}

const (
	DriverFS    = "fs"
	DriverMinio = "minio"
)

// Open returns the store for driver: "fs" roots keys at basePath, "minio"
// uses the bucket in mc.
func Open(driver, basePath string, mc MinioConfig) (BlobStore, error) {
	switch driver {
	case "", DriverFS:
		return NewFSStore(basePath)
	case DriverMinio:
		return NewMinioStore(mc)
	default:
		return nil, fmt.Errorf("unsupported blob driver: %s", driver)
	}
}
