package cache

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/yungbote/vantage-backend/internal/domain/monitor"
	"github.com/yungbote/vantage-backend/internal/platform/logger"
)

// Sync keeps the read-optimized projection of subjects, aspects and samples.
// Every mutating method is one atomic batch and is safe to retry.
type Sync struct {
	be  Backend
	log *logger.Logger
}

func NewSync(be Backend, log *logger.Logger) *Sync {
	return &Sync{be: be, log: log.With("service", "CacheSync")}
}

func (s *Sync) UpsertSubject(ctx context.Context, path string, fields map[string]string) error {
	return s.upsertIndexed(ctx, SubjectKey(path), SubjectIndexKey, fields)
}

// RemoveSubject drops the subject hash and its index membership. Samples are
// left alone; callers decide whether they go too.
func (s *Sync) RemoveSubject(ctx context.Context, path string) error {
	key := SubjectKey(path)
	return s.be.Exec(ctx, []Command{Del(key), SRem(SubjectIndexKey, key)})
}

func (s *Sync) GetSubject(ctx context.Context, path string) (map[string]string, bool, error) {
	return s.get(ctx, SubjectKey(path))
}

func (s *Sync) UpsertAspect(ctx context.Context, name string, fields map[string]string) error {
	return s.upsertIndexed(ctx, AspectKey(name), AspectIndexKey, fields)
}

func (s *Sync) RemoveAspect(ctx context.Context, name string) error {
	key := AspectKey(name)
	return s.be.Exec(ctx, []Command{Del(key), SRem(AspectIndexKey, key)})
}

func (s *Sync) GetAspect(ctx context.Context, name string) (map[string]string, bool, error) {
	return s.get(ctx, AspectKey(name))
}

// UpsertSample writes the sample hash and both membership sets together.
func (s *Sync) UpsertSample(ctx context.Context, subjectPath, aspectName string, fields map[string]string) error {
	if strings.TrimSpace(subjectPath) == "" || strings.TrimSpace(aspectName) == "" {
		return fmt.Errorf("upsert sample: subject path and aspect name required")
	}
	key := SampleKey(subjectPath, aspectName)
	return s.be.Exec(ctx, []Command{
		Del(key),
		HSet(key, fields),
		SAdd(SampleIndexKey, key),
		SAdd(SubjectAspectsKey(subjectPath), normalize(aspectName)),
		SAdd(AspectSubjectsKey(aspectName), normalize(subjectPath)),
	})
}

func (s *Sync) GetSample(ctx context.Context, subjectPath, aspectName string) (*monitor.Sample, bool, error) {
	fields, ok, err := s.get(ctx, SampleKey(subjectPath, aspectName))
	if err != nil || !ok {
		return nil, ok, err
	}
	return sampleFromHash(SampleKey(subjectPath, aspectName), fields), true, nil
}

func (s *Sync) AspectsForSubject(ctx context.Context, path string) ([]string, error) {
	return s.be.SMembers(ctx, SubjectAspectsKey(path))
}

func (s *Sync) SubjectsForAspect(ctx context.Context, name string) ([]string, error) {
	return s.be.SMembers(ctx, AspectSubjectsKey(name))
}

// DeleteSamplesForSubject removes every sample stored under path, the
// subject's aspect membership set, and the subject from each affected aspect's
// membership set. The removed samples are returned so callers can echo them as
// delete events.
func (s *Sync) DeleteSamplesForSubject(ctx context.Context, path string) ([]*monitor.Sample, error) {
	subject := normalize(path)
	aspects, err := s.be.SMembers(ctx, SubjectAspectsKey(subject))
	if err != nil {
		return nil, fmt.Errorf("read subject aspects: %w", err)
	}
	keys := make(map[string]struct{}, len(aspects))
	affected := make(map[string]struct{}, len(aspects))
	for _, a := range aspects {
		keys[SampleKey(subject, a)] = struct{}{}
		affected[a] = struct{}{}
	}
	indexed, err := s.be.SMembers(ctx, SampleIndexKey)
	if err != nil {
		return nil, fmt.Errorf("read sample index: %w", err)
	}
	prefix := SampleKeyPrefixForSubject(subject)
	for _, k := range indexed {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		keys[k] = struct{}{}
		if _, a, ok := ParseSampleKey(k); ok {
			affected[a] = struct{}{}
		}
	}

	sampleKeys := sortedKeys(keys)
	removed, err := s.readSamples(ctx, sampleKeys)
	if err != nil {
		return nil, err
	}

	cmds := make([]Command, 0, len(sampleKeys)+len(affected)+2)
	for _, k := range sampleKeys {
		cmds = append(cmds, Del(k))
	}
	if len(sampleKeys) > 0 {
		cmds = append(cmds, SRem(SampleIndexKey, sampleKeys...))
	}
	for _, a := range sortedKeys(affected) {
		cmds = append(cmds, SRem(AspectSubjectsKey(a), subject))
	}
	cmds = append(cmds, Del(SubjectAspectsKey(subject)))
	if err := s.be.Exec(ctx, cmds); err != nil {
		return nil, err
	}
	s.log.Debug("deleted samples for subject", "subject", subject, "count", len(removed))
	return removed, nil
}

// DeleteSamplesForAspect is the aspect-keyed mirror of DeleteSamplesForSubject.
func (s *Sync) DeleteSamplesForAspect(ctx context.Context, name string) ([]*monitor.Sample, error) {
	aspect := normalize(name)
	subjects, err := s.be.SMembers(ctx, AspectSubjectsKey(aspect))
	if err != nil {
		return nil, fmt.Errorf("read aspect subjects: %w", err)
	}
	keys := make(map[string]struct{}, len(subjects))
	affected := make(map[string]struct{}, len(subjects))
	for _, subj := range subjects {
		keys[SampleKey(subj, aspect)] = struct{}{}
		affected[subj] = struct{}{}
	}
	indexed, err := s.be.SMembers(ctx, SampleIndexKey)
	if err != nil {
		return nil, fmt.Errorf("read sample index: %w", err)
	}
	suffix := SampleKeySuffixForAspect(aspect)
	for _, k := range indexed {
		if !strings.HasSuffix(k, suffix) {
			continue
		}
		keys[k] = struct{}{}
		if subj, _, ok := ParseSampleKey(k); ok {
			affected[subj] = struct{}{}
		}
	}

	sampleKeys := sortedKeys(keys)
	removed, err := s.readSamples(ctx, sampleKeys)
	if err != nil {
		return nil, err
	}

	cmds := make([]Command, 0, len(sampleKeys)+len(affected)+2)
	for _, k := range sampleKeys {
		cmds = append(cmds, Del(k))
	}
	if len(sampleKeys) > 0 {
		cmds = append(cmds, SRem(SampleIndexKey, sampleKeys...))
	}
	for _, subj := range sortedKeys(affected) {
		cmds = append(cmds, SRem(SubjectAspectsKey(subj), aspect))
	}
	cmds = append(cmds, Del(AspectSubjectsKey(aspect)))
	if err := s.be.Exec(ctx, cmds); err != nil {
		return nil, err
	}
	s.log.Debug("deleted samples for aspect", "aspect", aspect, "count", len(removed))
	return removed, nil
}

// upsertIndexed overwrites a hash and adds it to its index set. When both the
// cached and the incoming hash carry a version, an older incoming version is
// dropped so a late retry cannot roll the projection back. The version check
// and the write happen in one backend call.
func (s *Sync) upsertIndexed(ctx context.Context, key, index string, fields map[string]string) error {
	if len(fields) == 0 {
		return fmt.Errorf("upsert %s: no fields", key)
	}
	cmds := []Command{Del(key), HSet(key, fields), SAdd(index, key)}
	incoming, ok := parseVersion(fields)
	if !ok {
		return s.be.Exec(ctx, cmds)
	}
	applied, err := s.be.ExecIfNotNewer(ctx, key, incoming, cmds)
	if err != nil {
		return err
	}
	if !applied {
		s.log.Debug("skipping stale cache upsert", "key", key, "incoming_version", incoming)
	}
	return nil
}

func (s *Sync) get(ctx context.Context, key string) (map[string]string, bool, error) {
	h, err := s.be.HGetAll(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if len(h) == 0 {
		return nil, false, nil
	}
	return h, true, nil
}

func (s *Sync) readSamples(ctx context.Context, keys []string) ([]*monitor.Sample, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	hashes, err := s.be.HGetAllMany(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	out := make([]*monitor.Sample, 0, len(keys))
	for i, h := range hashes {
		if len(h) == 0 {
			continue
		}
		out = append(out, sampleFromHash(keys[i], h))
	}
	return out, nil
}

// sampleFromHash prefers the original-case name stored in the hash and falls
// back to the lowercased key parts.
func sampleFromHash(key string, h map[string]string) *monitor.Sample {
	subj, asp, _ := ParseSampleKey(key)
	if name := h["name"]; name != "" {
		if i := strings.LastIndex(name, SampleNameSeparator); i > 0 && i < len(name)-1 {
			subj, asp = name[:i], name[i+1:]
		}
	}
	return &monitor.Sample{SubjectPath: subj, AspectName: asp, Fields: h}
}

func parseVersion(h map[string]string) (int64, bool) {
	raw, ok := h[VersionField]
	if !ok || raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
