package aspects

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/vantage-backend/internal/cache"
	"github.com/yungbote/vantage-backend/internal/data/db"
	monitorrepo "github.com/yungbote/vantage-backend/internal/data/repos/monitor"
	"github.com/yungbote/vantage-backend/internal/domain/monitor"
	"github.com/yungbote/vantage-backend/internal/modules/writepath"
	"github.com/yungbote/vantage-backend/internal/pkg/dbctx"
	"github.com/yungbote/vantage-backend/internal/platform/apierr"
	"github.com/yungbote/vantage-backend/internal/platform/logger"
	"github.com/yungbote/vantage-backend/internal/realtime"
)

type Notifier interface {
	Publish(ctx context.Context, entity realtime.Broadcastable, kind string, changed, ignored []string) error
}

// AspectPatch lists the fields an update may change. A range set to JSON
// null clears that slot.
type AspectPatch struct {
	Name          *string
	ValueType     *string
	CriticalRange *datatypes.JSON
	WarningRange  *datatypes.JSON
	InfoRange     *datatypes.JSON
	OKRange       *datatypes.JSON
	IsPublished   *bool
	Description   *string
	HelpEmail     *string
	HelpURL       *string
}

type Service interface {
	Create(ctx context.Context, a *monitor.Aspect) (*monitor.Aspect, error)
	Update(ctx context.Context, id uuid.UUID, patch AspectPatch) (*monitor.Aspect, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*monitor.Aspect, error)
	RepairRanges(ctx context.Context) (int, error)
	RebuildCache(ctx context.Context) (int, error)
}

type service struct {
	pipeline *writepath.Pipeline
	aspects  monitorrepo.AspectRepo
	cache    *cache.Sync
	notifier Notifier
	log      *logger.Logger
}

func NewService(
	pipeline *writepath.Pipeline,
	aspects monitorrepo.AspectRepo,
	cacheSync *cache.Sync,
	notifier Notifier,
	log *logger.Logger,
) Service {
	return &service{
		pipeline: pipeline,
		aspects:  aspects,
		cache:    cacheSync,
		notifier: notifier,
		log:      log.With("service", "AspectService"),
	}
}

func (s *service) Create(ctx context.Context, in *monitor.Aspect) (*monitor.Aspect, error) {
	a := in.Clone()
	a.ID = uuid.New()
	a.IsDeleted = false

	stages := []writepath.Stage{
		{Name: "validateFields", Run: func(ctx context.Context, tx *gorm.DB) error {
			return normalizeAndValidate(a)
		}},
		{Name: "validateRanges", Run: func(ctx context.Context, tx *gorm.DB) error {
			return ValidateRanges(a.ValueType, a)
		}},
		{Name: "checkDuplicate", Run: func(ctx context.Context, tx *gorm.DB) error {
			return s.checkDuplicate(dbctx.Context{Ctx: ctx, Tx: tx}, a)
		}},
		{Name: "persist", Run: func(ctx context.Context, tx *gorm.DB) error {
			return duplicateAware(a, s.aspects.Create(dbctx.Context{Ctx: ctx, Tx: tx}, a))
		}},
	}

	var effects []writepath.Effect
	if a.IsPublished {
		effects = append(effects, writepath.Effect{Name: "syncCache", Run: func(ctx context.Context) error {
			return s.cache.UpsertAspect(ctx, a.Name, a.CacheFields())
		}})
	}
	if err := s.pipeline.Execute(ctx, "aspect.create", stages, effects); err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, patch AspectPatch) (*monitor.Aspect, error) {
	var before, next *monitor.Aspect

	stages := []writepath.Stage{
		{Name: "lock", Run: func(ctx context.Context, tx *gorm.DB) error {
			cur, err := s.aspects.GetByIDForUpdate(dbctx.Context{Ctx: ctx, Tx: tx}, id)
			if err != nil {
				return err
			}
			if cur == nil {
				return apierr.Newf(apierr.AspectNotFound, "aspect %s not found", id)
			}
			before = cur.Clone()
			next = cur.Clone()
			applyPatch(next, patch)
			return nil
		}},
		{Name: "validateFields", Run: func(ctx context.Context, tx *gorm.DB) error {
			return normalizeAndValidate(next)
		}},
		{Name: "validateRanges", Run: func(ctx context.Context, tx *gorm.DB) error {
			return ValidateRanges(next.ValueType, next)
		}},
		{Name: "checkDuplicate", Run: func(ctx context.Context, tx *gorm.DB) error {
			return s.checkDuplicate(dbctx.Context{Ctx: ctx, Tx: tx}, next)
		}},
		{Name: "persist", Run: func(ctx context.Context, tx *gorm.DB) error {
			return duplicateAware(next, s.aspects.Save(dbctx.Context{Ctx: ctx, Tx: tx}, next))
		}},
	}

	cleanup := &sampleCleanup{svc: s}
	effects := []writepath.Effect{
		{Name: "syncCache", Run: func(ctx context.Context) error {
			renamed := !strings.EqualFold(before.Name, next.Name)
			if before.IsPublished && (!next.IsPublished || renamed) {
				if err := cleanup.run(ctx, before.Name); err != nil {
					return err
				}
			}
			if next.IsPublished {
				return s.cache.UpsertAspect(ctx, next.Name, next.CacheFields())
			}
			return nil
		}},
		{Name: "notify", Run: cleanup.echo},
	}
	if err := s.pipeline.Execute(ctx, "aspect.update", stages, effects); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// Delete soft-deletes the aspect, then removes every sample of it and its
// membership entries from the cache.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	var victim *monitor.Aspect
	stages := []writepath.Stage{
		{Name: "lock", Run: func(ctx context.Context, tx *gorm.DB) error {
			cur, err := s.aspects.GetByIDForUpdate(dbctx.Context{Ctx: ctx, Tx: tx}, id)
			if err != nil {
				return err
			}
			if cur == nil {
				return apierr.Newf(apierr.AspectNotFound, "aspect %s not found", id)
			}
			victim = cur
			return nil
		}},
		{Name: "persist", Run: func(ctx context.Context, tx *gorm.DB) error {
			return s.aspects.SoftDelete(dbctx.Context{Ctx: ctx, Tx: tx}, victim.ID)
		}},
	}

	cleanup := &sampleCleanup{svc: s}
	effects := []writepath.Effect{
		{Name: "syncCache", Run: func(ctx context.Context) error {
			return cleanup.run(ctx, victim.Name)
		}},
		{Name: "notify", Run: cleanup.echo},
	}
	return s.pipeline.Execute(ctx, "aspect.delete", stages, effects)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*monitor.Aspect, error) {
	a, err := s.aspects.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apierr.Newf(apierr.AspectNotFound, "aspect %s not found", id)
	}
	return a, nil
}

// RepairRanges clamps stored NUMERIC range bounds that fall outside the safe
// integer domain. It returns the number of aspects rewritten.
func (s *service) RepairRanges(ctx context.Context) (int, error) {
	var repaired []*monitor.Aspect
	stages := []writepath.Stage{
		{Name: "repairRanges", Run: func(ctx context.Context, tx *gorm.DB) error {
			dbc := dbctx.Context{Ctx: ctx, Tx: tx}
			list, err := s.aspects.ListByValueType(dbc, monitor.ValueTypeNumeric)
			if err != nil {
				return err
			}
			for _, a := range list {
				changed, err := clampAspect(a)
				if err != nil {
					s.log.Warn("skipping unrepairable aspect ranges", "aspect", a.Name, "error", err)
					continue
				}
				if !changed {
					continue
				}
				if err := s.aspects.UpdateRanges(dbc, a); err != nil {
					return err
				}
				repaired = append(repaired, a)
			}
			return nil
		}},
	}
	effects := []writepath.Effect{{Name: "syncCache", Run: func(ctx context.Context) error {
		for _, a := range repaired {
			if !a.IsPublished {
				continue
			}
			if err := s.cache.UpsertAspect(ctx, a.Name, a.CacheFields()); err != nil {
				return err
			}
		}
		return nil
	}}}
	if err := s.pipeline.Execute(ctx, "aspect.repairRanges", stages, effects); err != nil {
		return 0, err
	}
	if len(repaired) > 0 {
		s.log.Info("aspect ranges repaired", "count", len(repaired))
	}
	return len(repaired), nil
}

func (s *service) RebuildCache(ctx context.Context) (int, error) {
	published, err := s.aspects.ListPublished(dbctx.Context{Ctx: ctx})
	if err != nil {
		return 0, err
	}
	for _, a := range published {
		if err := s.cache.UpsertAspect(ctx, a.Name, a.CacheFields()); err != nil {
			return 0, fmt.Errorf("rebuild aspect cache: %w", err)
		}
	}
	return len(published), nil
}

func (s *service) checkDuplicate(dbc dbctx.Context, a *monitor.Aspect) error {
	taken, err := s.aspects.NameTaken(dbc, a.Name, a.ID)
	if err != nil {
		return err
	}
	if taken {
		return apierr.Newf(apierr.DuplicateResourceName, "aspect %q already exists", a.Name)
	}
	return nil
}

func clampAspect(a *monitor.Aspect) (bool, error) {
	touched := false
	for _, slot := range []*datatypes.JSON{&a.CriticalRange, &a.WarningRange, &a.InfoRange, &a.OKRange} {
		if !(monitor.RangeSlot{Raw: *slot}).Assigned() {
			continue
		}
		fixed, changed, err := ClampNumericRange(*slot)
		if err != nil {
			return false, err
		}
		if changed {
			*slot = fixed
			touched = true
		}
	}
	return touched, nil
}

// sampleCleanup carries removed samples from the cache effect to the notify
// effect of one write.
type sampleCleanup struct {
	svc     *service
	mu      sync.Mutex
	removed []*monitor.Sample
}

func (c *sampleCleanup) run(ctx context.Context, aspectName string) error {
	samples, err := c.svc.cache.DeleteSamplesForAspect(ctx, aspectName)
	c.mu.Lock()
	c.removed = append(c.removed, samples...)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.svc.cache.RemoveAspect(ctx, aspectName)
}

func (c *sampleCleanup) echo(ctx context.Context) error {
	c.mu.Lock()
	pending := c.removed
	c.removed = nil
	c.mu.Unlock()
	for i, smp := range pending {
		if err := c.svc.notifier.Publish(ctx, smp, realtime.EventDelete, nil, nil); err != nil {
			c.mu.Lock()
			c.removed = append(pending[i:], c.removed...)
			c.mu.Unlock()
			return err
		}
	}
	return nil
}

func normalizeAndValidate(a *monitor.Aspect) error {
	raw := a.ValueType
	a.Normalize()
	if _, ok := monitor.ParseValueType(string(raw)); !ok {
		return apierr.Newf(apierr.ValidationError, "valueType %q must be one of BOOLEAN, NUMERIC, PERCENT", raw)
	}
	return a.Validate()
}

func duplicateAware(a *monitor.Aspect, err error) error {
	if err != nil && db.IsUniqueViolation(err) {
		return apierr.New(apierr.DuplicateResourceName, fmt.Errorf("aspect %q already exists: %w", a.Name, err))
	}
	return err
}

func applyPatch(a *monitor.Aspect, p AspectPatch) {
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.ValueType != nil {
		a.ValueType = monitor.ValueType(*p.ValueType)
	}
	if p.CriticalRange != nil {
		a.CriticalRange = *p.CriticalRange
	}
	if p.WarningRange != nil {
		a.WarningRange = *p.WarningRange
	}
	if p.InfoRange != nil {
		a.InfoRange = *p.InfoRange
	}
	if p.OKRange != nil {
		a.OKRange = *p.OKRange
	}
	if p.IsPublished != nil {
		a.IsPublished = *p.IsPublished
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.HelpEmail != nil {
		a.HelpEmail = p.HelpEmail
	}
	if p.HelpURL != nil {
		a.HelpURL = p.HelpURL
	}
}
