package storage

import (
	"context"
	"io"
	"path"
	"strings"
	"time"
)

// Service stores user avatar objects in remote object storage.
type Service interface {
	PutObject(ctx context.Context, key string, body io.Reader, contentType string) error
	GetObjectURL(ctx context.Context, key string, expires time.Duration) (string, error)
	DeleteObject(ctx context.Context, key string) error
}

// AvatarKey is the object key holding a user's avatar.
func AvatarKey(prefix, userID string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return path.Join("avatars", userID)
	}
	return path.Join(prefix, userID)
}
