package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/vantage-backend/internal/platform/logger"
)

func newTestSync(t *testing.T) (*Sync, *MemoryBackend) {
	t.Helper()
	be := NewMemoryBackend()
	return NewSync(be, logger.NewNop()), be
}

func seedSample(t *testing.T, s *Sync, subject, aspect string) {
	t.Helper()
	err := s.UpsertSample(context.Background(), subject, aspect, map[string]string{
		"name":   subject + "|" + aspect,
		"value":  "1",
		"status": "OK",
	})
	require.NoError(t, err)
}

func TestUpsertAndRemoveSubject(t *testing.T) {
	ctx := context.Background()
	s, be := newTestSync(t)

	require.NoError(t, s.UpsertSubject(ctx, "Root.A", map[string]string{"name": "A", "helpUrl": "http://x"}))
	require.NoError(t, s.UpsertSubject(ctx, "root.a", map[string]string{"name": "A"}))
	got, ok, err := s.GetSubject(ctx, "ROOT.A")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, map[string]string{"name": "A"}, got, "upsert must overwrite, not merge")

	member, err := be.SIsMember(ctx, SubjectIndexKey, SubjectKey("root.a"))
	require.NoError(t, err)
	require.True(t, member)

	require.NoError(t, s.RemoveSubject(ctx, "Root.A"))
	require.NoError(t, s.RemoveSubject(ctx, "Root.A"), "remove is idempotent")
	_, ok, err = s.GetSubject(ctx, "root.a")
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, be.Keys())
}

func TestRemoveSubjectLeavesSamples(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSync(t)
	require.NoError(t, s.UpsertSubject(ctx, "a", map[string]string{"name": "a"}))
	seedSample(t, s, "a", "cpu")

	require.NoError(t, s.RemoveSubject(ctx, "a"))
	_, ok, err := s.GetSample(ctx, "a", "cpu")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStaleVersionIsSkipped(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSync(t)
	require.NoError(t, s.UpsertSubject(ctx, "a", map[string]string{"name": "new", "version": "200"}))
	require.NoError(t, s.UpsertSubject(ctx, "a", map[string]string{"name": "old", "version": "100"}))
	got, _, err := s.GetSubject(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "new", got["name"])
}

func TestConcurrentUpsertsKeepNewestVersion(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSync(t)

	const writers = 64
	start := make(chan struct{})
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for v := 1; v <= writers; v++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			<-start
			errs <- s.UpsertSubject(ctx, "a", map[string]string{
				"name":       "v" + strconv.Itoa(v),
				VersionField: strconv.Itoa(v),
			})
		}(v)
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, ok, err := s.GetSubject(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, strconv.Itoa(writers), got[VersionField])
	require.Equal(t, "v"+strconv.Itoa(writers), got["name"])
}

func TestExecIfNotNewer(t *testing.T) {
	ctx := context.Background()
	be := NewMemoryBackend()
	write := func(v int64) []Command {
		return []Command{HSet("k", map[string]string{VersionField: strconv.FormatInt(v, 10)})}
	}

	applied, err := be.ExecIfNotNewer(ctx, "k", 5, write(5))
	require.NoError(t, err)
	require.True(t, applied, "missing key always applies")

	applied, err = be.ExecIfNotNewer(ctx, "k", 5, write(5))
	require.NoError(t, err)
	require.True(t, applied, "equal version is a retry and applies")

	applied, err = be.ExecIfNotNewer(ctx, "k", 4, write(4))
	require.NoError(t, err)
	require.False(t, applied)
	h, _ := be.HGetAll(ctx, "k")
	require.Equal(t, "5", h[VersionField])

	be.FailNextExecs(1)
	applied, err = be.ExecIfNotNewer(ctx, "k", 9, write(9))
	require.Error(t, err)
	require.False(t, applied)
}

func TestDeleteSamplesForSubject(t *testing.T) {
	ctx := context.Background()
	s, be := newTestSync(t)
	seedSample(t, s, "Root.A", "cpu")
	seedSample(t, s, "Root.A", "mem")
	seedSample(t, s, "Root.A.B", "cpu")
	seedSample(t, s, "Root.AB", "cpu")

	removed, err := s.DeleteSamplesForSubject(ctx, "root.a")
	require.NoError(t, err)
	require.Len(t, removed, 2)
	for _, smp := range removed {
		require.Equal(t, "Root.A", smp.SubjectPath)
	}

	aspects, err := s.AspectsForSubject(ctx, "root.a")
	require.NoError(t, err)
	require.Empty(t, aspects)

	cpuSubjects, err := s.SubjectsForAspect(ctx, "cpu")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"root.a.b", "root.ab"}, cpuSubjects)
	memSubjects, err := s.SubjectsForAspect(ctx, "mem")
	require.NoError(t, err)
	require.Empty(t, memSubjects)

	for _, k := range be.Keys() {
		require.False(t, strings.HasPrefix(k, SampleKeyPrefixForSubject("root.a")), "leaked %s", k)
	}

	again, err := s.DeleteSamplesForSubject(ctx, "root.a")
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestDeleteSamplesForAspectLeavesNoOrphans(t *testing.T) {
	ctx := context.Background()
	s, be := newTestSync(t)
	seedSample(t, s, "a", "Temp")
	seedSample(t, s, "a.b", "temp")
	seedSample(t, s, "a.b", "humidity")
	seedSample(t, s, "c", "humidity")

	removed, err := s.DeleteSamplesForAspect(ctx, "TEMP")
	require.NoError(t, err)
	require.Len(t, removed, 2)

	indexed, err := be.SMembers(ctx, SampleIndexKey)
	require.NoError(t, err)
	for _, k := range indexed {
		require.False(t, strings.HasSuffix(k, "|temp"), "index still holds %s", k)
	}
	for _, subj := range []string{"a", "a.b", "c"} {
		aspects, err := s.AspectsForSubject(ctx, subj)
		require.NoError(t, err)
		require.NotContains(t, aspects, "temp")
	}
	_, err = be.SMembers(ctx, AspectSubjectsKey("temp"))
	require.NoError(t, err)
	require.NotContains(t, be.Keys(), AspectSubjectsKey("temp"))

	aspects, err := s.AspectsForSubject(ctx, "a.b")
	require.NoError(t, err)
	require.Equal(t, []string{"humidity"}, aspects)
}

func TestDeleteSamplesFindsUnmappedSamplesThroughIndex(t *testing.T) {
	ctx := context.Background()
	s, be := newTestSync(t)
	key := SampleKey("x", "orphan")
	require.NoError(t, be.Exec(ctx, []Command{
		HSet(key, map[string]string{"value": "3"}),
		SAdd(SampleIndexKey, key),
	}))

	removed, err := s.DeleteSamplesForAspect(ctx, "orphan")
	require.NoError(t, err)
	require.Len(t, removed, 1)
	require.Equal(t, "x", removed[0].SubjectPath)
	require.Empty(t, be.Keys())
}

func TestFailedBatchAppliesNothing(t *testing.T) {
	ctx := context.Background()
	s, be := newTestSync(t)
	be.FailNextExecs(1)
	require.Error(t, s.UpsertSample(ctx, "a", "cpu", map[string]string{"value": "1"}))
	require.Empty(t, be.Keys())
}
