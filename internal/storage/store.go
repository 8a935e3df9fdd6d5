package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/gosimple/slug"
)

// Store persists generated artifacts and returns a URL clients can fetch them from.
type Store interface {
	Put(ctx context.Context, key string, contentType string, data []byte) (string, error)
}

var (
	ErrInvalidKey    = errors.New("invalid_storage_key")
	ErrUnknownDriver = errors.New("unknown_storage_driver")
)

// ObjectKey lays artifacts out as <kind>/<model slug>/<id>.<ext>.
func ObjectKey(kind, model, id, ext string) string {
	modelSlug := slug.Make(model)
	if modelSlug == "" {
		modelSlug = "default"
	}
	return kind + "/" + modelSlug + "/" + id + "." + strings.TrimPrefix(ext, ".")
}
