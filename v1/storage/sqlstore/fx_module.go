package sqlstore

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/schema-registry/v1/postgres"
	"github.com/Aleph-Alpha/schema-registry/v1/storage"
)

// FXModule provides the PostgreSQL-backed storage.Gateway and migrates the
// schema on start. It needs postgres.FXModule in the same application.
var FXModule = fx.Module("sqlstore",
	fx.Provide(
		NewStoreWithDI,
		func(s *Store) storage.Gateway { return s },
	),
	fx.Invoke(RegisterStoreLifecycle),
)

// StoreParams are the dependencies of NewStoreWithDI.
type StoreParams struct {
	fx.In

	Postgres *postgres.Postgres
	Blobs    BlobStore `optional:"true"`
	Logger   Logger
}

// NewStoreWithDI wraps New for fx.
func NewStoreWithDI(params StoreParams) *Store {
	return New(params.Postgres, params.Blobs, params.Logger)
}

// RegisterStoreLifecycle runs the schema migration when the application starts.
func RegisterStoreLifecycle(lc fx.Lifecycle, store *Store, logger Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := store.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("registry schema migrated", nil)
			return nil
		},
	})
}
