package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction. Write
// pipeline stages always carry Tx; reads outside a stage leave it nil.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// In binds the context to ctx, preferring the open transaction over root.
func (c Context) In(root *gorm.DB) *gorm.DB {
	db := c.Tx
	if db == nil {
		db = root
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return db.WithContext(ctx)
}

// InTx reports whether the caller is inside a transaction.
func (c Context) InTx() bool { return c.Tx != nil }
