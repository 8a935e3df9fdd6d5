package storagefx

import (
	"context"
	"fmt"

	"github.com/smallbiznis/genstudio/internal/config"
	"github.com/smallbiznis/genstudio/internal/storage"
	"github.com/smallbiznis/genstudio/internal/storage/local"
	"github.com/smallbiznis/genstudio/internal/storage/s3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("storage",
	fx.Provide(NewStore),
)

// NewStore picks the artifact store named by STORAGE_DRIVER.
func NewStore(cfg config.Config, log *zap.Logger) (storage.Store, error) {
	log = log.Named("storage")
	switch cfg.Storage.Driver {
	case "", "local":
		log.Info("using local artifact store", zap.String("dir", cfg.Storage.LocalDir))
		return local.New(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL), nil
	case "s3":
		store, err := s3.New(context.Background(), cfg.Storage.S3Region, cfg.Storage.S3Bucket, cfg.Storage.S3Prefix, cfg.Storage.PublicBaseURL)
		if err != nil {
			return nil, err
		}
		log.Info("using s3 artifact store",
			zap.String("bucket", cfg.Storage.S3Bucket),
			zap.String("prefix", cfg.Storage.S3Prefix),
		)
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownDriver, cfg.Storage.Driver)
	}
}
