package storage

import (
	"context"
)

type ObjectStore interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}
