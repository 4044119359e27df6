package dbctx

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

type ctxKey struct{}

func TestInPrefersTransaction(t *testing.T) {
	root, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: gormLogger.Default.LogMode(gormLogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	ctx := context.WithValue(context.Background(), ctxKey{}, "v")

	got := Context{Ctx: ctx}.In(root)
	if got.Statement.Context.Value(ctxKey{}) != "v" {
		t.Fatalf("expected the request context on the root session")
	}

	tx := root.Begin()
	defer tx.Rollback()
	dbc := Context{Ctx: ctx, Tx: tx}
	if !dbc.InTx() {
		t.Fatalf("expected InTx with a transaction set")
	}
	if dbc.In(root).Statement.ConnPool != tx.Statement.ConnPool {
		t.Fatalf("expected the transaction's connection")
	}

	if (Context{}).In(root).Statement.Context == nil {
		t.Fatalf("nil ctx should fall back to background")
	}
}
