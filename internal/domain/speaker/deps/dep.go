package deps

import (
	"context"

	"github.com/Conte777/tg-userharvest/internal/domain/speaker/entities"
)

// Repository is the read and maintenance side of speaker storage
type Repository interface {
	UsernamesInWindow(ctx context.Context, f entities.UsernameFilter) ([]string, error)
	CleanedUsernames(ctx context.Context) ([]string, error)
	Cleanup(ctx context.Context) (*entities.CleanupReport, error)
	Stats(ctx context.Context) (*entities.Stats, error)
}

// ObjectStore uploads export files and returns their public URL
type ObjectStore interface {
	UploadObject(ctx context.Context, objectKey, contentType string, data []byte) (string, error)
}
