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

type AspectRepo interface {
	Create(dbc dbctx.Context, a *monitor.Aspect) error
	Save(dbc dbctx.Context, a *monitor.Aspect) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*monitor.Aspect, error)
	GetByIDForUpdate(dbc dbctx.Context, id uuid.UUID) (*monitor.Aspect, error)
	GetByName(dbc dbctx.Context, name string) (*monitor.Aspect, error)
	NameTaken(dbc dbctx.Context, name string, excludeID uuid.UUID) (bool, error)
	ListByValueType(dbc dbctx.Context, vt monitor.ValueType) ([]*monitor.Aspect, error)
	ListPublished(dbc dbctx.Context) ([]*monitor.Aspect, error)
	UpdateRanges(dbc dbctx.Context, a *monitor.Aspect) error
	SoftDelete(dbc dbctx.Context, id uuid.UUID) error
}

type aspectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAspectRepo(db *gorm.DB, baseLog *logger.Logger) AspectRepo {
	return &aspectRepo{
		db:  db,
		log: baseLog.With("repo", "AspectRepo"),
	}
}

func (r *aspectRepo) live(dbc dbctx.Context) *gorm.DB {
	return dbc.In(r.db).Model(&monitor.Aspect{}).Where("is_deleted = ?", false)
}

func (r *aspectRepo) Create(dbc dbctx.Context, a *monitor.Aspect) error {
	return dbc.In(r.db).Create(a).Error
}

func (r *aspectRepo) Save(dbc dbctx.Context, a *monitor.Aspect) error {
	return dbc.In(r.db).Save(a).Error
}

func (r *aspectRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*monitor.Aspect, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return first[monitor.Aspect](r.live(dbc).Where("id = ?", id))
}

func (r *aspectRepo) GetByIDForUpdate(dbc dbctx.Context, id uuid.UUID) (*monitor.Aspect, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	q := r.live(dbc).Where("id = ?", id)
	if dbc.InTx() {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return first[monitor.Aspect](q)
}

func (r *aspectRepo) GetByName(dbc dbctx.Context, name string) (*monitor.Aspect, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	return first[monitor.Aspect](r.live(dbc).Where("LOWER(name) = ?", strings.ToLower(name)))
}

func (r *aspectRepo) NameTaken(dbc dbctx.Context, name string, excludeID uuid.UUID) (bool, error) {
	q := r.live(dbc).Where("LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name)))
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *aspectRepo) ListByValueType(dbc dbctx.Context, vt monitor.ValueType) ([]*monitor.Aspect, error) {
	var out []*monitor.Aspect
	if err := r.live(dbc).Where("value_type = ?", vt).Order("name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *aspectRepo) ListPublished(dbc dbctx.Context) ([]*monitor.Aspect, error) {
	var out []*monitor.Aspect
	if err := r.live(dbc).Where("is_published = ?", true).Order("name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateRanges rewrites only the four range columns.
func (r *aspectRepo) UpdateRanges(dbc dbctx.Context, a *monitor.Aspect) error {
	a.UpdatedAt = time.Now().UTC()
	return dbc.In(r.db).
		Model(&monitor.Aspect{}).
		Where("id = ?", a.ID).
		Updates(map[string]any{
			"critical_range": a.CriticalRange,
			"warning_range":  a.WarningRange,
			"info_range":     a.InfoRange,
			"ok_range":       a.OKRange,
			"updated_at":     a.UpdatedAt,
		}).Error
}

func (r *aspectRepo) SoftDelete(dbc dbctx.Context, id uuid.UUID) error {
	return dbc.In(r.db).
		Model(&monitor.Aspect{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_deleted": true,
			"updated_at": time.Now().UTC(),
		}).Error
}
