package hierarchy

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/vantage-backend/internal/cache"
	"github.com/yungbote/vantage-backend/internal/data/db"
	monitorrepo "github.com/yungbote/vantage-backend/internal/data/repos/monitor"
	"github.com/yungbote/vantage-backend/internal/domain/monitor"
	"github.com/yungbote/vantage-backend/internal/modules/writepath"
	"github.com/yungbote/vantage-backend/internal/observability"
	"github.com/yungbote/vantage-backend/internal/pkg/dbctx"
	"github.com/yungbote/vantage-backend/internal/platform/apierr"
	"github.com/yungbote/vantage-backend/internal/platform/logger"
	"github.com/yungbote/vantage-backend/internal/realtime"
)

// IgnoredFields are bookkeeping fields left out of subject update broadcasts.
var IgnoredFields = []string{"childCount", "parentAbsolutePath", "parentId", "createdAt", "updatedAt", "version"}

const reconcileParallelism = 8

// Notifier announces committed changes to subscribers.
type Notifier interface {
	Publish(ctx context.Context, entity realtime.Broadcastable, kind string, changed, ignored []string) error
}

// ParentRef points at a new parent. A ref with neither field set moves the
// subject to the root.
type ParentRef struct {
	ID           *uuid.UUID
	AbsolutePath *string
}

// SubjectPatch lists the fields an update may change; nil leaves a field as is.
type SubjectPatch struct {
	Name        *string
	Parent      *ParentRef
	IsPublished *bool
	Description *string
	HelpEmail   *string
	HelpURL     *string
	ImageURL    *string
}

type Service interface {
	Create(ctx context.Context, s *monitor.Subject) (*monitor.Subject, error)
	Update(ctx context.Context, id uuid.UUID, patch SubjectPatch) (*monitor.Subject, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*monitor.Subject, error)
	GetByPath(ctx context.Context, path string) (*monitor.Subject, error)
	RebuildCache(ctx context.Context) (int, error)
}

type service struct {
	pipeline *writepath.Pipeline
	subjects monitorrepo.SubjectRepo
	cache    *cache.Sync
	notifier Notifier
	log      *logger.Logger
}

func NewService(
	pipeline *writepath.Pipeline,
	subjects monitorrepo.SubjectRepo,
	cacheSync *cache.Sync,
	notifier Notifier,
	log *logger.Logger,
) Service {
	return &service{
		pipeline: pipeline,
		subjects: subjects,
		cache:    cacheSync,
		notifier: notifier,
		log:      log.With("service", "HierarchyService"),
	}
}

func (s *service) lookup(dbc dbctx.Context) ParentLookup {
	return func(field, value string) (*monitor.Subject, error) {
		return s.subjects.FindByKey(dbc, field, value)
	}
}

func (s *service) Create(ctx context.Context, in *monitor.Subject) (*monitor.Subject, error) {
	subj := in.Clone()
	subj.ID = uuid.New()
	subj.AbsolutePath = ""
	subj.ChildCount = 0
	subj.IsDeleted = false

	stages := []writepath.Stage{
		{Name: "validateFields", Run: func(ctx context.Context, tx *gorm.DB) error {
			subj.Normalize()
			return subj.Validate()
		}},
		{Name: "resolvePath", Run: func(ctx context.Context, tx *gorm.DB) error {
			res, err := ResolvePath(subj, s.lookup(dbctx.Context{Ctx: ctx, Tx: tx}))
			if err != nil {
				return err
			}
			res.Apply(subj)
			return nil
		}},
		{Name: "checkDuplicate", Run: func(ctx context.Context, tx *gorm.DB) error {
			return s.checkDuplicate(dbctx.Context{Ctx: ctx, Tx: tx}, subj)
		}},
		{Name: "persist", Run: func(ctx context.Context, tx *gorm.DB) error {
			return duplicateAware(subj, s.subjects.Create(dbctx.Context{Ctx: ctx, Tx: tx}, subj))
		}},
		{Name: "adjustCounts", Run: func(ctx context.Context, tx *gorm.DB) error {
			if subj.ParentID == nil {
				return nil
			}
			return s.subjects.AdjustChildCount(dbctx.Context{Ctx: ctx, Tx: tx}, *subj.ParentID, 1)
		}},
	}

	// Effects read subj after commit, once resolvePath has filled ParentID.
	effects := []writepath.Effect{
		{Name: "syncCache", Run: func(ctx context.Context) error {
			if subj.IsPublished {
				if err := s.cache.UpsertSubject(ctx, subj.AbsolutePath, subj.CacheFields()); err != nil {
					return err
				}
			}
			return s.refreshParents(ctx, subj.ParentID)
		}},
		{Name: "notify", Run: func(ctx context.Context) error {
			if !subj.IsPublished {
				return nil
			}
			return s.notifier.Publish(ctx, subj, realtime.EventAdd, nil, IgnoredFields)
		}},
	}

	if err := s.pipeline.Execute(ctx, "subject.create", stages, effects); err != nil {
		return nil, err
	}
	return subj.Clone(), nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, patch SubjectPatch) (*monitor.Subject, error) {
	var before, next *monitor.Subject
	var changes []PathChange

	stages := []writepath.Stage{
		{Name: "lock", Run: func(ctx context.Context, tx *gorm.DB) error {
			cur, err := s.subjects.GetByIDForUpdate(dbctx.Context{Ctx: ctx, Tx: tx}, id)
			if err != nil {
				return err
			}
			if cur == nil {
				return apierr.Newf(apierr.SubjectNotFound, "subject %s not found", id)
			}
			before = cur.Clone()
			next = cur.Clone()
			applyPatch(next, patch)
			return nil
		}},
		{Name: "validateFields", Run: func(ctx context.Context, tx *gorm.DB) error {
			next.Normalize()
			return next.Validate()
		}},
		{Name: "resolvePath", Run: func(ctx context.Context, tx *gorm.DB) error {
			res, err := ResolvePath(next, s.lookup(dbctx.Context{Ctx: ctx, Tx: tx}))
			if err != nil {
				return err
			}
			res.Apply(next)
			return nil
		}},
		{Name: "checkDuplicate", Run: func(ctx context.Context, tx *gorm.DB) error {
			return s.checkDuplicate(dbctx.Context{Ctx: ctx, Tx: tx}, next)
		}},
		{Name: "checkPublish", Run: func(ctx context.Context, tx *gorm.DB) error {
			if !before.IsPublished || next.IsPublished {
				return nil
			}
			has, err := s.subjects.HasPublishedDescendant(dbctx.Context{Ctx: ctx, Tx: tx}, before.AbsolutePath)
			if err != nil {
				return err
			}
			if has {
				return apierr.Newf(apierr.SubjectHasPublishedDescendants,
					"cannot unpublish %q while it has published descendants", before.AbsolutePath)
			}
			return nil
		}},
		{Name: "persist", Run: func(ctx context.Context, tx *gorm.DB) error {
			return duplicateAware(next, s.subjects.Save(dbctx.Context{Ctx: ctx, Tx: tx}, next))
		}},
		{Name: "cascade", Run: func(ctx context.Context, tx *gorm.DB) error {
			if next.AbsolutePath == before.AbsolutePath {
				return nil
			}
			dbc := dbctx.Context{Ctx: ctx, Tx: tx}
			subtree, err := s.subjects.ListSubtree(dbc, before.AbsolutePath)
			if err != nil {
				return err
			}
			changes = RewriteDescendants(next, before.AbsolutePath, subtree)
			observability.CascadeSize.Observe(float64(len(changes)))
			rows := make([]*monitor.Subject, 0, len(changes))
			for _, c := range changes {
				rows = append(rows, c.Subject)
			}
			return s.subjects.UpdatePaths(dbc, rows)
		}},
		{Name: "adjustCounts", Run: func(ctx context.Context, tx *gorm.DB) error {
			if sameParent(before.ParentID, next.ParentID) {
				return nil
			}
			dbc := dbctx.Context{Ctx: ctx, Tx: tx}
			if before.ParentID != nil {
				if err := s.subjects.AdjustChildCount(dbc, *before.ParentID, -1); err != nil {
					return err
				}
			}
			if next.ParentID != nil {
				return s.subjects.AdjustChildCount(dbc, *next.ParentID, 1)
			}
			return nil
		}},
	}

	rec := &reconcile{svc: s}
	effects := []writepath.Effect{
		{Name: "syncCache", Run: func(ctx context.Context) error {
			return rec.sync(ctx, before, next, changes)
		}},
		{Name: "notify", Run: func(ctx context.Context) error {
			return rec.notify(ctx, before, next, changes)
		}},
	}

	if err := s.pipeline.Execute(ctx, "subject.update", stages, effects); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	var victim *monitor.Subject

	stages := []writepath.Stage{
		{Name: "lock", Run: func(ctx context.Context, tx *gorm.DB) error {
			cur, err := s.subjects.GetByIDForUpdate(dbctx.Context{Ctx: ctx, Tx: tx}, id)
			if err != nil {
				return err
			}
			if cur == nil {
				return apierr.Newf(apierr.SubjectNotFound, "subject %s not found", id)
			}
			victim = cur
			return nil
		}},
		{Name: "checkChildren", Run: func(ctx context.Context, tx *gorm.DB) error {
			n, err := s.subjects.CountChildren(dbctx.Context{Ctx: ctx, Tx: tx}, victim.ID)
			if err != nil {
				return err
			}
			if n > 0 || victim.ChildCount > 0 {
				return apierr.Newf(apierr.SubjectDeleteConstraintError,
					"subject %q still has %d children", victim.AbsolutePath, max(n, int64(victim.ChildCount))).
					WithEntity(victim.Clone())
			}
			return nil
		}},
		{Name: "persist", Run: func(ctx context.Context, tx *gorm.DB) error {
			return s.subjects.SoftDelete(dbctx.Context{Ctx: ctx, Tx: tx}, victim.ID)
		}},
		{Name: "adjustCounts", Run: func(ctx context.Context, tx *gorm.DB) error {
			if victim.ParentID == nil {
				return nil
			}
			return s.subjects.AdjustChildCount(dbctx.Context{Ctx: ctx, Tx: tx}, *victim.ParentID, -1)
		}},
	}

	rec := &reconcile{svc: s}
	effects := []writepath.Effect{
		{Name: "syncCache", Run: func(ctx context.Context) error {
			if victim.IsPublished {
				if err := rec.purge(ctx, victim.AbsolutePath); err != nil {
					return err
				}
			}
			return s.refreshParents(ctx, victim.ParentID)
		}},
		{Name: "notify", Run: func(ctx context.Context) error {
			if !victim.IsPublished {
				return nil
			}
			if err := rec.echoRemovedSamples(ctx); err != nil {
				return err
			}
			return s.notifier.Publish(ctx, victim, realtime.EventDelete, nil, IgnoredFields)
		}},
	}

	return s.pipeline.Execute(ctx, "subject.delete", stages, effects)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*monitor.Subject, error) {
	subj, err := s.subjects.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, err
	}
	if subj == nil {
		return nil, apierr.Newf(apierr.SubjectNotFound, "subject %s not found", id)
	}
	return subj, nil
}

func (s *service) GetByPath(ctx context.Context, path string) (*monitor.Subject, error) {
	subj, err := s.subjects.GetByPath(dbctx.Context{Ctx: ctx}, path)
	if err != nil {
		return nil, err
	}
	if subj == nil {
		return nil, apierr.Newf(apierr.SubjectNotFound, "subject %q not found", path)
	}
	return subj, nil
}

// RebuildCache re-derives the subject projection from the system of record.
// Entries for subjects that are no longer published are left alone.
func (s *service) RebuildCache(ctx context.Context) (int, error) {
	published, err := s.subjects.ListPublished(dbctx.Context{Ctx: ctx})
	if err != nil {
		return 0, err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileParallelism)
	for _, subj := range published {
		g.Go(func() error {
			return s.cache.UpsertSubject(gctx, subj.AbsolutePath, subj.CacheFields())
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("rebuild subject cache: %w", err)
	}
	s.log.Info("subject cache rebuilt", "subjects", len(published))
	return len(published), nil
}

func (s *service) checkDuplicate(dbc dbctx.Context, subj *monitor.Subject) error {
	taken, err := s.subjects.PathTaken(dbc, subj.AbsolutePath, subj.ID)
	if err != nil {
		return err
	}
	if taken {
		return apierr.Newf(apierr.DuplicateResourceName, "subject %q already exists", subj.AbsolutePath)
	}
	return nil
}

// refreshParents re-caches published parents whose child count moved.
func (s *service) refreshParents(ctx context.Context, ids ...*uuid.UUID) error {
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if id == nil || seen[*id] {
			continue
		}
		seen[*id] = true
		parent, err := s.subjects.GetByID(dbctx.Context{Ctx: ctx}, *id)
		if err != nil {
			return err
		}
		if parent == nil || !parent.IsPublished {
			continue
		}
		if err := s.cache.UpsertSubject(ctx, parent.AbsolutePath, parent.CacheFields()); err != nil {
			return err
		}
	}
	return nil
}

func duplicateAware(subj *monitor.Subject, err error) error {
	if err != nil && db.IsUniqueViolation(err) {
		return apierr.New(apierr.DuplicateResourceName, fmt.Errorf("subject %q already exists: %w", subj.AbsolutePath, err))
	}
	return err
}

func applyPatch(s *monitor.Subject, p SubjectPatch) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Parent != nil {
		s.ParentID = p.Parent.ID
		s.ParentAbsolutePath = p.Parent.AbsolutePath
	}
	if p.IsPublished != nil {
		s.IsPublished = *p.IsPublished
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.HelpEmail != nil {
		s.HelpEmail = p.HelpEmail
	}
	if p.HelpURL != nil {
		s.HelpURL = p.HelpURL
	}
	if p.ImageURL != nil {
		s.ImageURL = p.ImageURL
	}
}

func sameParent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// changedFields lists broadcast fields whose value differs between before
// and after, leaving out ignored ones.
func changedFields(before, after realtime.Broadcastable, ignored []string) []string {
	b := before.BroadcastFields()
	a := after.BroadcastFields()
	out := make([]string, 0, len(a))
	for k, v := range a {
		if old, ok := b[k]; !ok || !reflect.DeepEqual(old, v) {
			out = append(out, k)
		}
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			out = append(out, k)
		}
	}
	return slices.DeleteFunc(out, func(k string) bool { return slices.Contains(ignored, k) })
}

// reconcile carries state between the syncCache and notify effects of one
// write. Both effects may be retried, so removed samples accumulate.
type reconcile struct {
	svc     *service
	mu      sync.Mutex
	removed []*monitor.Sample
}

func (r *reconcile) purge(ctx context.Context, path string) error {
	if err := r.svc.cache.RemoveSubject(ctx, path); err != nil {
		return err
	}
	samples, err := r.svc.cache.DeleteSamplesForSubject(ctx, path)
	r.mu.Lock()
	r.removed = append(r.removed, samples...)
	r.mu.Unlock()
	return err
}

func (r *reconcile) sync(ctx context.Context, before, next *monitor.Subject, changes []PathChange) error {
	switch {
	case !before.IsPublished && next.IsPublished:
		if err := r.svc.cache.UpsertSubject(ctx, next.AbsolutePath, next.CacheFields()); err != nil {
			return err
		}
	case before.IsPublished && !next.IsPublished:
		if err := r.purge(ctx, before.AbsolutePath); err != nil {
			return err
		}
	case before.IsPublished && next.IsPublished:
		if before.AbsolutePath != next.AbsolutePath {
			if err := r.rename(ctx, before.AbsolutePath, next); err != nil {
				return err
			}
		} else if err := r.svc.cache.UpsertSubject(ctx, next.AbsolutePath, next.CacheFields()); err != nil {
			return err
		}
	}

	// Published descendants follow their ancestor's new path. An unpublished
	// subject has no published descendants, so this only runs for renames.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileParallelism)
	for _, c := range changes {
		if !c.Subject.IsPublished {
			continue
		}
		g.Go(func() error {
			return r.rename(gctx, c.OldPath, c.Subject)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if !sameParent(before.ParentID, next.ParentID) {
		return r.svc.refreshParents(ctx, before.ParentID, next.ParentID)
	}
	return nil
}

// rename drops the entry and samples under oldPath and caches subj under its
// new path. Samples are not carried over.
func (r *reconcile) rename(ctx context.Context, oldPath string, subj *monitor.Subject) error {
	if err := r.purge(ctx, oldPath); err != nil {
		return err
	}
	return r.svc.cache.UpsertSubject(ctx, subj.AbsolutePath, subj.CacheFields())
}

func (r *reconcile) echoRemovedSamples(ctx context.Context) error {
	r.mu.Lock()
	pending := r.removed
	r.removed = nil
	r.mu.Unlock()
	for i, smp := range pending {
		if err := r.svc.notifier.Publish(ctx, smp, realtime.EventDelete, nil, nil); err != nil {
			r.mu.Lock()
			r.removed = append(r.removed, pending[i:]...)
			r.mu.Unlock()
			return err
		}
	}
	return nil
}

func (r *reconcile) notify(ctx context.Context, before, next *monitor.Subject, changes []PathChange) error {
	if err := r.echoRemovedSamples(ctx); err != nil {
		return err
	}
	n := r.svc.notifier
	switch {
	case !before.IsPublished && next.IsPublished:
		return n.Publish(ctx, next, realtime.EventAdd, nil, IgnoredFields)
	case before.IsPublished && !next.IsPublished:
		return n.Publish(ctx, before, realtime.EventDelete, nil, IgnoredFields)
	case before.IsPublished && next.IsPublished:
		changed := changedFields(before, next, IgnoredFields)
		if len(changed) > 0 {
			if err := n.Publish(ctx, next, realtime.EventUpdate, changed, IgnoredFields); err != nil {
				return err
			}
		}
		for _, c := range changes {
			if !c.Subject.IsPublished {
				continue
			}
			if err := n.Publish(ctx, c.Subject, realtime.EventUpdate, []string{"absolutePath"}, IgnoredFields); err != nil {
				return err
			}
		}
	}
	return nil
}
