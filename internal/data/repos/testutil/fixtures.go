package testutil

import (
	"context"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/vantage-backend/internal/domain/monitor"
)

// SeedSubject inserts a subject row directly, bypassing hierarchy rules.
// parent may be nil for a root.
func SeedSubject(tb testing.TB, ctx context.Context, tx *gorm.DB, name string, parent *monitor.Subject, published bool) *monitor.Subject {
	tb.Helper()
	s := &monitor.Subject{
		ID:           uuid.New(),
		Name:         name,
		AbsolutePath: name,
		IsPublished:  published,
	}
	if parent != nil {
		pid := parent.ID
		ppath := parent.AbsolutePath
		s.ParentID = &pid
		s.ParentAbsolutePath = &ppath
		s.AbsolutePath = parent.AbsolutePath + "." + name
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed subject: %v", err)
	}
	if parent != nil {
		if err := tx.WithContext(ctx).Model(&monitor.Subject{}).
			Where("id = ?", parent.ID).
			Update("child_count", gorm.Expr("child_count + 1")).Error; err != nil {
			tb.Fatalf("seed subject child count: %v", err)
		}
		parent.ChildCount++
	}
	return s
}

// SeedChildren bulk-inserts n direct children named <prefix>0..<prefix>n-1
// under parent and bumps its child count once.
func SeedChildren(tb testing.TB, ctx context.Context, tx *gorm.DB, parent *monitor.Subject, prefix string, n int, published bool) []*monitor.Subject {
	tb.Helper()
	pid := parent.ID
	ppath := parent.AbsolutePath
	kids := make([]*monitor.Subject, n)
	for i := range kids {
		name := prefix + strconv.Itoa(i)
		kids[i] = &monitor.Subject{
			ID:                 uuid.New(),
			Name:               name,
			AbsolutePath:       ppath + "." + name,
			ParentID:           &pid,
			ParentAbsolutePath: &ppath,
			IsPublished:        published,
		}
	}
	if err := tx.WithContext(ctx).CreateInBatches(kids, 64).Error; err != nil {
		tb.Fatalf("seed children: %v", err)
	}
	if err := tx.WithContext(ctx).Model(&monitor.Subject{}).
		Where("id = ?", parent.ID).
		Update("child_count", gorm.Expr("child_count + ?", n)).Error; err != nil {
		tb.Fatalf("seed children count: %v", err)
	}
	parent.ChildCount += n
	return kids
}

func SeedAspect(tb testing.TB, ctx context.Context, tx *gorm.DB, name string, vt monitor.ValueType, published bool) *monitor.Aspect {
	tb.Helper()
	a := &monitor.Aspect{
		ID:          uuid.New(),
		Name:        name,
		ValueType:   vt,
		IsPublished: published,
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed aspect: %v", err)
	}
	return a
}

// Range builds a JSON range column value.
func Range(raw string) datatypes.JSON {
	return datatypes.JSON([]byte(raw))
}
