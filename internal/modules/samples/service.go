package samples

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yungbote/vantage-backend/internal/cache"
	"github.com/yungbote/vantage-backend/internal/domain/monitor"
	"github.com/yungbote/vantage-backend/internal/platform/apierr"
	"github.com/yungbote/vantage-backend/internal/platform/logger"
	"github.com/yungbote/vantage-backend/internal/realtime"
)

var ErrSampleNotFound = errors.New("sample not found")

type Notifier interface {
	Publish(ctx context.Context, entity realtime.Broadcastable, kind string, changed, ignored []string) error
}

type SampleInput struct {
	SubjectPath string `json:"subjectPath"`
	AspectName  string `json:"aspectName"`
	Value       string `json:"value"`
	MessageCode string `json:"messageCode,omitempty"`
	MessageBody string `json:"messageBody,omitempty"`
}

type Service interface {
	Upsert(ctx context.Context, in SampleInput) (*monitor.Sample, error)
	Get(ctx context.Context, subjectPath, aspectName string) (*monitor.Sample, error)
}

type service struct {
	cache    *cache.Sync
	notifier Notifier
	log      *logger.Logger
	now      func() time.Time
}

func NewService(cacheSync *cache.Sync, notifier Notifier, log *logger.Logger) Service {
	return &service{
		cache:    cacheSync,
		notifier: notifier,
		log:      log.With("service", "SampleService"),
		now:      time.Now,
	}
}

// Upsert scores a value against its aspect and stores it. Samples live only
// in the cache, so both the subject and the aspect must be published.
func (s *service) Upsert(ctx context.Context, in SampleInput) (*monitor.Sample, error) {
	in.SubjectPath = strings.TrimSpace(in.SubjectPath)
	in.AspectName = strings.TrimSpace(in.AspectName)
	if in.SubjectPath == "" {
		return nil, apierr.Newf(apierr.MissingRequiredField, "subjectPath is required")
	}
	if in.AspectName == "" {
		return nil, apierr.Newf(apierr.MissingRequiredField, "aspectName is required")
	}

	subject, ok, err := s.cache.GetSubject(ctx, in.SubjectPath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apierr.Newf(apierr.SubjectNotFound, "subject %q is not published", in.SubjectPath)
	}
	aspect, ok, err := s.cache.GetAspect(ctx, in.AspectName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apierr.Newf(apierr.AspectNotFound, "aspect %q is not published", in.AspectName)
	}
	prev, existed, err := s.cache.GetSample(ctx, in.SubjectPath, in.AspectName)
	if err != nil {
		return nil, err
	}

	subjectPath := firstNonEmpty(subject["absolutePath"], in.SubjectPath)
	aspectName := firstNonEmpty(aspect["name"], in.AspectName)
	now := s.now().UTC().Format(time.RFC3339Nano)
	status := Score(aspect, in.Value)

	previousStatus := monitor.StatusInvalid
	changedAt := now
	if existed {
		previousStatus = firstNonEmpty(prev.Status(), monitor.StatusInvalid)
		if previousStatus == status && prev.Fields["statusChangedAt"] != "" {
			changedAt = prev.Fields["statusChangedAt"]
		}
	}

	smp := &monitor.Sample{
		SubjectPath: subjectPath,
		AspectName:  aspectName,
		Fields: map[string]string{
			"name":            monitor.SampleName(subjectPath, aspectName),
			"value":           in.Value,
			"status":          status,
			"previousStatus":  previousStatus,
			"statusChangedAt": changedAt,
			"updatedAt":       now,
			"messageCode":     in.MessageCode,
			"messageBody":     in.MessageBody,
		},
	}
	if err := s.cache.UpsertSample(ctx, subjectPath, aspectName, smp.Fields); err != nil {
		return nil, err
	}

	kind := realtime.EventAdd
	if existed {
		kind = realtime.EventUpdate
	}
	if err := s.notifier.Publish(ctx, smp, kind, nil, nil); err != nil {
		s.log.Warn("sample notification dropped", "sample", smp.Name(), "error", err)
	}
	return smp, nil
}

func (s *service) Get(ctx context.Context, subjectPath, aspectName string) (*monitor.Sample, error) {
	smp, ok, err := s.cache.GetSample(ctx, subjectPath, aspectName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSampleNotFound
	}
	return smp, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
