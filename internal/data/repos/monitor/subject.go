package monitor

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/vantage-backend/internal/domain/monitor"
	"github.com/yungbote/vantage-backend/internal/pkg/dbctx"
	"github.com/yungbote/vantage-backend/internal/platform/logger"
)

// Lookup fields accepted by FindByKey.
const (
	KeyID           = "id"
	KeyAbsolutePath = "absolutePath"
)

type SubjectRepo interface {
	Create(dbc dbctx.Context, s *monitor.Subject) error
	Save(dbc dbctx.Context, s *monitor.Subject) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*monitor.Subject, error)
	GetByIDForUpdate(dbc dbctx.Context, id uuid.UUID) (*monitor.Subject, error)
	GetByPath(dbc dbctx.Context, path string) (*monitor.Subject, error)
	FindByKey(dbc dbctx.Context, field, value string) (*monitor.Subject, error)
	ListSubtree(dbc dbctx.Context, rootPath string) ([]*monitor.Subject, error)
	ListPublished(dbc dbctx.Context) ([]*monitor.Subject, error)
	HasPublishedDescendant(dbc dbctx.Context, rootPath string) (bool, error)
	PathTaken(dbc dbctx.Context, path string, excludeID uuid.UUID) (bool, error)
	CountChildren(dbc dbctx.Context, id uuid.UUID) (int64, error)
	UpdatePaths(dbc dbctx.Context, rows []*monitor.Subject) error
	AdjustChildCount(dbc dbctx.Context, id uuid.UUID, delta int) error
	SoftDelete(dbc dbctx.Context, id uuid.UUID) error
}

type subjectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubjectRepo(db *gorm.DB, baseLog *logger.Logger) SubjectRepo {
	return &subjectRepo{
		db:  db,
		log: baseLog.With("repo", "SubjectRepo"),
	}
}

func (r *subjectRepo) live(dbc dbctx.Context) *gorm.DB {
	return dbc.In(r.db).Model(&monitor.Subject{}).Where("is_deleted = ?", false)
}

func (r *subjectRepo) Create(dbc dbctx.Context, s *monitor.Subject) error {
	return dbc.In(r.db).Create(s).Error
}

func (r *subjectRepo) Save(dbc dbctx.Context, s *monitor.Subject) error {
	return dbc.In(r.db).Save(s).Error
}

func (r *subjectRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*monitor.Subject, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return first[monitor.Subject](r.live(dbc).Where("id = ?", id))
}

// GetByIDForUpdate row-locks the subject for the rest of the transaction.
// sqlite has no row locks and serializes writers instead.
func (r *subjectRepo) GetByIDForUpdate(dbc dbctx.Context, id uuid.UUID) (*monitor.Subject, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	q := r.live(dbc).Where("id = ?", id)
	if dbc.InTx() {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return first[monitor.Subject](q)
}

func (r *subjectRepo) GetByPath(dbc dbctx.Context, path string) (*monitor.Subject, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	return first[monitor.Subject](r.live(dbc).Where("LOWER(absolute_path) = ?", strings.ToLower(path)))
}

func (r *subjectRepo) FindByKey(dbc dbctx.Context, field, value string) (*monitor.Subject, error) {
	switch field {
	case KeyID:
		id, err := uuid.Parse(strings.TrimSpace(value))
		if err != nil {
			return nil, nil
		}
		return r.GetByID(dbc, id)
	case KeyAbsolutePath:
		return r.GetByPath(dbc, value)
	default:
		return nil, nil
	}
}

// ListSubtree returns every live strict descendant of rootPath, shallowest
// first.
func (r *subjectRepo) ListSubtree(dbc dbctx.Context, rootPath string) ([]*monitor.Subject, error) {
	prefix := strings.ToLower(rootPath) + "."
	var out []*monitor.Subject
	err := r.live(dbc).
		Where("SUBSTR(LOWER(absolute_path), 1, ?) = ?", len(prefix), prefix).
		Order("LENGTH(absolute_path) ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *subjectRepo) ListPublished(dbc dbctx.Context) ([]*monitor.Subject, error) {
	var out []*monitor.Subject
	if err := r.live(dbc).Where("is_published = ?", true).Order("absolute_path ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *subjectRepo) HasPublishedDescendant(dbc dbctx.Context, rootPath string) (bool, error) {
	prefix := strings.ToLower(rootPath) + "."
	var count int64
	err := r.live(dbc).
		Where("is_published = ?", true).
		Where("SUBSTR(LOWER(absolute_path), 1, ?) = ?", len(prefix), prefix).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *subjectRepo) PathTaken(dbc dbctx.Context, path string, excludeID uuid.UUID) (bool, error) {
	q := r.live(dbc).Where("LOWER(absolute_path) = ?", strings.ToLower(path))
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *subjectRepo) CountChildren(dbc dbctx.Context, id uuid.UUID) (int64, error) {
	var count int64
	if err := r.live(dbc).Where("parent_id = ?", id).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// pathBatchSize rows per statement keeps an upsert under SQLite's smallest
// bind variable limit (999).
const pathBatchSize = 64

// UpdatePaths writes the linkage columns of many rows, pathBatchSize rows per
// statement. Run it inside the caller's transaction so a large subtree still
// moves as one unit.
func (r *subjectRepo) UpdatePaths(dbc dbctx.Context, rows []*monitor.Subject) error {
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, row := range rows {
		row.UpdatedAt = now
	}
	return dbc.In(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"absolute_path", "parent_absolute_path", "parent_id", "updated_at"}),
		}).
		CreateInBatches(rows, pathBatchSize).Error
}

func (r *subjectRepo) AdjustChildCount(dbc dbctx.Context, id uuid.UUID, delta int) error {
	if id == uuid.Nil || delta == 0 {
		return nil
	}
	return dbc.In(r.db).
		Model(&monitor.Subject{}).
		Where("id = ?", id).
		UpdateColumn("child_count", gorm.Expr("child_count + ?", delta)).Error
}

func (r *subjectRepo) SoftDelete(dbc dbctx.Context, id uuid.UUID) error {
	return dbc.In(r.db).
		Model(&monitor.Subject{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_deleted": true,
			"updated_at": time.Now().UTC(),
		}).Error
}

func first[T any](q *gorm.DB) (*T, error) {
	var rows []*T
	if err := q.Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}
