package hierarchy

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/vantage-backend/internal/cache"
	monitorrepo "github.com/yungbote/vantage-backend/internal/data/repos/monitor"
	"github.com/yungbote/vantage-backend/internal/data/repos/testutil"
	"github.com/yungbote/vantage-backend/internal/domain/monitor"
	"github.com/yungbote/vantage-backend/internal/modules/writepath"
	"github.com/yungbote/vantage-backend/internal/platform/apierr"
	"github.com/yungbote/vantage-backend/internal/realtime"
)

type sentMessage struct {
	channel string
	data    map[string]any
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (n *recordingNotifier) Publish(ctx context.Context, entity realtime.Broadcastable, kind string, changed, ignored []string) error {
	msg := realtime.BuildMessage(entity, kind, changed, ignored)
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{channel: msg.Channel, data: msg.Data})
	return nil
}

func (n *recordingNotifier) channels() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, m := range n.sent {
		out = append(out, m.channel)
	}
	return out
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	n.sent = nil
	n.mu.Unlock()
}

type harness struct {
	db       *gorm.DB
	svc      Service
	repo     monitorrepo.SubjectRepo
	sync     *cache.Sync
	backend  *cache.MemoryBackend
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	be := cache.NewMemoryBackend()
	cs := cache.NewSync(be, log)
	repo := monitorrepo.NewSubjectRepo(gdb, log)
	n := &recordingNotifier{}
	p := writepath.New(gdb, log, writepath.Config{Timeout: time.Second, MaxTries: 2, Async: false})
	return &harness{
		db:       gdb,
		svc:      NewService(p, repo, cs, n, log),
		repo:     repo,
		sync:     cs,
		backend:  be,
		notifier: n,
	}
}

func (h *harness) create(t *testing.T, name string, parentPath string, published bool) *monitor.Subject {
	t.Helper()
	in := &monitor.Subject{Name: name, IsPublished: published}
	if parentPath != "" {
		in.ParentAbsolutePath = &parentPath
	}
	out, err := h.svc.Create(context.Background(), in)
	require.NoError(t, err)
	return out
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *monitor.Subject {
	t.Helper()
	s, err := h.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return s
}

// rows snapshots the linkage of every live subject keyed by id.
func (h *harness) rows(t *testing.T) map[uuid.UUID]string {
	t.Helper()
	var all []*monitor.Subject
	require.NoError(t, h.db.Where("is_deleted = ?", false).Find(&all).Error)
	out := make(map[uuid.UUID]string, len(all))
	for _, s := range all {
		parent, ppath := "-", "-"
		if s.ParentID != nil {
			parent = s.ParentID.String()
		}
		if s.ParentAbsolutePath != nil {
			ppath = *s.ParentAbsolutePath
		}
		out[s.ID] = fmt.Sprintf("%s|%s|%s|%d|%t", s.AbsolutePath, parent, ppath, s.ChildCount, s.IsPublished)
	}
	return out
}

func boolPtr(b bool) *bool { return &b }

func TestHierarchyScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	a := h.create(t, "A", "", true)
	b := h.create(t, "B", "A", true)
	require.Equal(t, "A.B", b.AbsolutePath)
	require.Equal(t, 1, h.reload(t, a.ID).ChildCount)

	renamed, err := h.svc.Update(ctx, b.ID, SubjectPatch{Name: strPtr("B2")})
	require.NoError(t, err)
	require.Equal(t, "A.B2", renamed.AbsolutePath)

	_, err = h.svc.Update(ctx, a.ID, SubjectPatch{IsPublished: boolPtr(false)})
	require.True(t, apierr.Is(err, apierr.SubjectHasPublishedDescendants), "got %v", err)
	require.True(t, h.reload(t, a.ID).IsPublished, "rejected write must leave the store unchanged")

	require.NoError(t, h.svc.Delete(ctx, b.ID))
	require.Equal(t, 0, h.reload(t, a.ID).ChildCount)
	require.NoError(t, h.svc.Delete(ctx, a.ID))

	_, err = h.svc.Get(ctx, a.ID)
	require.True(t, apierr.Is(err, apierr.SubjectNotFound))
	require.Empty(t, h.backend.Keys())
}

func TestCreateRejectsBadParents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.create(t, "draft", "", false)

	_, err := h.svc.Create(ctx, &monitor.Subject{Name: "x", ParentAbsolutePath: strPtr("ghost")})
	require.True(t, apierr.Is(err, apierr.ParentSubjectNotFound), "got %v", err)

	_, err = h.svc.Create(ctx, &monitor.Subject{Name: "x", IsPublished: true, ParentAbsolutePath: strPtr("draft")})
	require.True(t, apierr.Is(err, apierr.ParentSubjectNotPublished), "got %v", err)

	_, err = h.svc.Create(ctx, &monitor.Subject{Name: "DRAFT"})
	require.True(t, apierr.Is(err, apierr.DuplicateResourceName), "got %v", err)

	_, err = h.svc.Create(ctx, &monitor.Subject{Name: "bad name"})
	require.True(t, apierr.IsKind(err, apierr.KindValidation), "got %v", err)

	_, err = h.svc.Create(ctx, &monitor.Subject{Name: "links", HelpEmail: strPtr(""), HelpURL: strPtr(""), ImageURL: strPtr("")})
	require.NoError(t, err, "empty optional links are absent, not invalid")

	_, err = h.svc.Create(ctx, &monitor.Subject{Name: "links2", HelpURL: strPtr("not a url")})
	require.True(t, apierr.Is(err, apierr.SchemaValidationError), "got %v", err)

	draft, err := h.svc.GetByPath(ctx, "DRAFT")
	require.NoError(t, err)
	require.Equal(t, 0, draft.ChildCount)
}

func TestReparentMovesCountsAndCascades(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p1 := h.create(t, "p1", "", false)
	p2 := h.create(t, "p2", "", false)
	mid := h.create(t, "mid", "p1", false)
	leaf := h.create(t, "leaf", "p1.mid", false)

	moved, err := h.svc.Update(ctx, mid.ID, SubjectPatch{Parent: &ParentRef{ID: &p2.ID}})
	require.NoError(t, err)
	require.Equal(t, "p2.mid", moved.AbsolutePath)
	require.Equal(t, 0, h.reload(t, p1.ID).ChildCount)
	require.Equal(t, 1, h.reload(t, p2.ID).ChildCount)

	l := h.reload(t, leaf.ID)
	require.Equal(t, "p2.mid.leaf", l.AbsolutePath)
	require.Equal(t, "p2.mid", *l.ParentAbsolutePath)
	require.Equal(t, mid.ID, *l.ParentID)

	_, err = h.svc.Update(ctx, p2.ID, SubjectPatch{Parent: &ParentRef{AbsolutePath: strPtr("p2.mid.leaf")}})
	require.True(t, apierr.Is(err, apierr.IllegalSelfParenting), "got %v", err)

	_, err = h.svc.Update(ctx, mid.ID, SubjectPatch{Parent: &ParentRef{ID: &mid.ID}})
	require.True(t, apierr.Is(err, apierr.IllegalSelfParenting), "got %v", err)

	toRoot, err := h.svc.Update(ctx, mid.ID, SubjectPatch{Parent: &ParentRef{}})
	require.NoError(t, err)
	require.Equal(t, "mid", toRoot.AbsolutePath)
	require.Nil(t, toRoot.ParentID)
	require.Equal(t, 0, h.reload(t, p2.ID).ChildCount)
	require.Equal(t, "mid.leaf", h.reload(t, leaf.ID).AbsolutePath)
}

func TestRenameDiscardsSamplesAndRenamesCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.create(t, "root", "", true)
	b := h.create(t, "b", "root", true)
	h.create(t, "c", "root.b", true)
	require.NoError(t, h.sync.UpsertSample(ctx, "root.b", "cpu", map[string]string{"name": "root.b|cpu", "value": "1"}))
	require.NoError(t, h.sync.UpsertSample(ctx, "root.b.c", "cpu", map[string]string{"name": "root.b.c|cpu", "value": "2"}))
	h.notifier.reset()

	_, err := h.svc.Update(ctx, b.ID, SubjectPatch{Name: strPtr("b2"), Description: strPtr("moved")})
	require.NoError(t, err)

	for _, old := range []string{"root.b", "root.b.c"} {
		_, ok, err := h.sync.GetSubject(ctx, old)
		require.NoError(t, err)
		require.False(t, ok, "stale cache entry %s", old)
		_, ok, err = h.sync.GetSample(ctx, old, "cpu")
		require.NoError(t, err)
		require.False(t, ok, "sample under old path %s must be removed", old)
	}
	for _, fresh := range []string{"root.b2", "root.b2.c"} {
		got, ok, err := h.sync.GetSubject(ctx, fresh)
		require.NoError(t, err)
		require.True(t, ok, "missing cache entry %s", fresh)
		require.Equal(t, fresh, got["absolutePath"])
	}
	subjects, err := h.sync.SubjectsForAspect(ctx, "cpu")
	require.NoError(t, err)
	require.Empty(t, subjects)

	channels := h.notifier.channels()
	require.Contains(t, channels, "sample.delete")
	require.Contains(t, channels, "subject.update")

	for _, m := range h.notifier.sent {
		if m.channel == "subject.update" && m.data["name"] == "b2" {
			require.Equal(t, "moved", m.data["description"])
			require.NotContains(t, m.data, "updatedAt")
			require.NotContains(t, m.data, "parentAbsolutePath")
		}
	}
}

func TestPublishTransitions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.create(t, "svc", "", false)
	require.Empty(t, h.notifier.channels(), "unpublished subjects are never broadcast")

	_, err := h.svc.Update(ctx, s.ID, SubjectPatch{IsPublished: boolPtr(true)})
	require.NoError(t, err)
	_, ok, err := h.sync.GetSubject(ctx, "svc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"subject.add"}, h.notifier.channels())

	require.NoError(t, h.sync.UpsertSample(ctx, "svc", "up", map[string]string{"name": "svc|up", "value": "1"}))
	h.notifier.reset()
	_, err = h.svc.Update(ctx, s.ID, SubjectPatch{IsPublished: boolPtr(false)})
	require.NoError(t, err)
	_, ok, err = h.sync.GetSubject(ctx, "svc")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, []string{"sample.delete", "subject.delete"}, h.notifier.channels())
	require.Empty(t, h.backend.Keys())
}

func TestDeleteWithChildrenFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	parent := h.create(t, "p", "", false)
	h.create(t, "c", "p", false)

	err := h.svc.Delete(ctx, parent.ID)
	require.True(t, apierr.Is(err, apierr.SubjectDeleteConstraintError), "got %v", err)
	ae, _ := apierr.As(err)
	offending, ok := ae.Entity.(*monitor.Subject)
	require.True(t, ok)
	require.Equal(t, parent.ID, offending.ID)

	require.True(t, apierr.Is(h.svc.Delete(ctx, uuid.New()), apierr.SubjectNotFound))
}

func TestCacheOutageDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.backend.FailNextExecs(2)

	s, err := h.svc.Create(ctx, &monitor.Subject{Name: "resilient", IsPublished: true})
	require.NoError(t, err)
	require.Equal(t, "resilient", h.reload(t, s.ID).AbsolutePath)
	_, ok, err := h.sync.GetSubject(ctx, "resilient")
	require.NoError(t, err)
	require.False(t, ok, "cache is stale after the outage")

	n, err := h.svc.RebuildCache(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, ok, err = h.sync.GetSubject(ctx, "resilient")
	require.NoError(t, err)
	require.True(t, ok, "rebuild re-derives the projection")
}

func TestParentCacheTracksChildCount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.create(t, "top", "", true)
	h.create(t, "kid", "top", true)

	got, ok, err := h.sync.GetSubject(ctx, "top")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", got["childCount"])
}

func TestRejectedReparentLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p1 := h.create(t, "p1", "", true)
	h.create(t, "p2", "", true)
	mid := h.create(t, "mid", "p1", true)
	h.create(t, "leaf", "p1.mid", true)
	require.NoError(t, h.sync.UpsertSample(ctx, "p1.mid", "cpu", map[string]string{"name": "p1.mid|cpu", "value": "1"}))

	wantRows := h.rows(t)
	wantKeys := h.backend.Keys()
	h.notifier.reset()

	ghost := uuid.New()
	cases := []struct {
		name  string
		id    uuid.UUID
		patch SubjectPatch
		want  string
	}{
		{name: "self", id: mid.ID, patch: SubjectPatch{Parent: &ParentRef{ID: &mid.ID}}, want: apierr.IllegalSelfParenting},
		{name: "under own descendant", id: p1.ID, patch: SubjectPatch{Parent: &ParentRef{AbsolutePath: strPtr("p1.mid.leaf")}}, want: apierr.IllegalSelfParenting},
		{name: "unknown parent id", id: mid.ID, patch: SubjectPatch{Parent: &ParentRef{ID: &ghost}}, want: apierr.ParentSubjectNotFound},
		{name: "unknown parent path", id: mid.ID, patch: SubjectPatch{Parent: &ParentRef{AbsolutePath: strPtr("ghost")}}, want: apierr.ParentSubjectNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.Update(ctx, tc.id, tc.patch)
			require.True(t, apierr.Is(err, tc.want), "got %v", err)
			require.Equal(t, wantRows, h.rows(t), "paths, parents and child counts must not move")
			require.Equal(t, wantKeys, h.backend.Keys())
			require.Empty(t, h.notifier.channels())
		})
	}

	got, ok, err := h.sync.GetSubject(ctx, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", got["childCount"])
	_, ok, err = h.sync.GetSample(ctx, "p1.mid", "cpu")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUnpublishedChildByPathRefreshesParentCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	top := h.create(t, "top", "", true)
	h.notifier.reset()

	kid := h.create(t, "kid", "top", false)
	require.Equal(t, top.ID, *kid.ParentID)
	require.Equal(t, 1, h.reload(t, top.ID).ChildCount)

	got, ok, err := h.sync.GetSubject(ctx, "top")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", got["childCount"], "cached parent must match the database")

	_, ok, err = h.sync.GetSubject(ctx, "top.kid")
	require.NoError(t, err)
	require.False(t, ok, "unpublished subjects stay out of the cache")
	require.Empty(t, h.notifier.channels())
}

func TestBookkeepingOnlyUpdateIsNotBroadcast(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.create(t, "quiet", "", true)
	h.notifier.reset()

	_, err := h.svc.Update(ctx, s.ID, SubjectPatch{})
	require.NoError(t, err)
	_, err = h.svc.Update(ctx, s.ID, SubjectPatch{Description: strPtr(s.Description)})
	require.NoError(t, err)
	require.Empty(t, h.notifier.channels(), "an update that only moves updatedAt has nothing to announce")

	_, err = h.svc.Update(ctx, s.ID, SubjectPatch{Description: strPtr("loud")})
	require.NoError(t, err)
	require.Equal(t, []string{"subject.update"}, h.notifier.channels())
	require.Equal(t, "loud", h.notifier.sent[0].data["description"])
}

func TestRenameLargeSubtree(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	root := h.create(t, "root", "", false)
	kids := testutil.SeedChildren(t, ctx, h.db, root, "c", 5000, false)

	renamed, err := h.svc.Update(ctx, root.ID, SubjectPatch{Name: strPtr("root2")})
	require.NoError(t, err)
	require.Equal(t, "root2", renamed.AbsolutePath)

	var moved int64
	require.NoError(t, h.db.Model(&monitor.Subject{}).Where("parent_absolute_path = ?", "root2").Count(&moved).Error)
	require.EqualValues(t, len(kids), moved)
	require.Equal(t, "root2.c4999", h.reload(t, kids[len(kids)-1].ID).AbsolutePath)
	require.Equal(t, len(kids), h.reload(t, root.ID).ChildCount)
}
