package blobstore

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/schema-registry/v1/storage/sqlstore"
)

// FXModule provides *Store and exposes it as the SQL store's BlobStore.
var FXModule = fx.Module("blobstore",
	fx.Provide(
		NewStore,
		fx.Annotate(
			func(s *Store) *Store { return s },
			fx.As(new(sqlstore.BlobStore)),
		),
	),
	fx.Invoke(RegisterLifecycle),
)

// RegisterLifecycle makes sure the bucket exists before the application
// starts serving.
func RegisterLifecycle(lc fx.Lifecycle, s *Store, logger Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := s.EnsureBucket(ctx); err != nil {
				return err
			}
			logger.Info("blob store ready", nil, map[string]interface{}{"bucket": s.Bucket()})
			return nil
		},
	})
}
