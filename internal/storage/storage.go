package storage

import (
	"context"
	"errors"
	"time"
)

// ErrObjectExists is returned by Create when the key is already taken.
var ErrObjectExists = errors.New("object already exists")

type ObjectInfo struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	ETag         string            `json:"etag,omitempty"`
	LastModified time.Time         `json:"last_modified,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Object is one export file together with the metadata stored beside it.
// Metadata keys are lower-case and values must be plain ASCII.
type Object struct {
	Key         string
	Body        []byte
	ContentType string
	Metadata    map[string]string
}

// ObjectStore is where exported result files land. Objects are write-once:
// Create never replaces an existing key. On ErrObjectExists the returned info
// describes the object already stored.
type ObjectStore interface {
	Create(ctx context.Context, obj Object) (ObjectInfo, error)
	Location(key string) string
}
