// Package storage persists generated images. The mode is picked per request:
// a local directory, nothing at all (the client keeps the data), or S3.
package storage

import (
	"context"
	"strings"
)

type Mode string

const (
	ModeFile   Mode = "file"
	ModeMemory Mode = "memory"
	ModeS3     Mode = "s3"
)

// ResolveMode applies the precedence: explicit override, then the managed
// platform flag (no writable disk there), then file storage.
func ResolveMode(explicit string, platformManaged bool) Mode {
	switch strings.ToLower(strings.TrimSpace(explicit)) {
	case "file", "fs":
		return ModeFile
	case "memory", "indexeddb":
		return ModeMemory
	case "s3":
		return ModeS3
	}
	if platformManaged {
		return ModeMemory
	}
	return ModeFile
}

type Object struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Store saves one object and returns the path callers can fetch it from,
// or "" when the object is not retrievable from this service.
type Store interface {
	Save(ctx context.Context, obj Object) (string, error)
}

// Preparer is implemented by stores that need setup before the first write.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// MemoryStore keeps nothing server-side; the base64 payload in the response
// is the only copy.
type MemoryStore struct{}

func (MemoryStore) Save(context.Context, Object) (string, error) {
	return "", nil
}

func ContentTypeFor(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
