package postgres

import (
	"context"

	"gorm.io/gorm"
)

// Transaction runs fn inside a database transaction. The transaction is rolled
// back when fn returns an error or panics and committed otherwise.
func (p *Postgres) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return p.DB().WithContext(ctx).Transaction(fn)
}
