// Package writepath runs a system-of-record write as an explicit, ordered
// pipeline: named stages inside one database transaction, then named
// post-commit effects (cache sync, notification) that are best-effort.
//
// A stage error rolls the whole transaction back and is returned to the
// caller. An effect error is retried, logged and counted, and never reaches
// the caller; the committed write stands.
package writepath

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/yungbote/vantage-backend/internal/observability"
	"github.com/yungbote/vantage-backend/internal/platform/apierr"
	"github.com/yungbote/vantage-backend/internal/platform/ctxutil"
	"github.com/yungbote/vantage-backend/internal/platform/logger"
)

// Stage runs inside the transaction and may veto the write.
type Stage struct {
	Name string
	Run  func(ctx context.Context, tx *gorm.DB) error
}

// Effect runs after commit. It must be idempotent: it may run more than once.
type Effect struct {
	Name string
	Run  func(ctx context.Context) error
}

type Config struct {
	// Timeout bounds a single effect attempt.
	Timeout time.Duration
	// MaxTries bounds attempts per effect, including the first.
	MaxTries uint
	// Async runs effects on a background goroutine after Execute returns.
	Async bool
}

func DefaultConfig() Config {
	return Config{Timeout: 2 * time.Second, MaxTries: 3, Async: true}
}

// StageError records which stage rejected the write.
type StageError struct {
	Op    string
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s %s: %v", e.Op, e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

type Pipeline struct {
	db  *gorm.DB
	log *logger.Logger
	cfg Config
	wg  sync.WaitGroup
}

func New(db *gorm.DB, log *logger.Logger, cfg Config) *Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 1
	}
	return &Pipeline{db: db, log: log.With("service", "WritePipeline"), cfg: cfg}
}

func (p *Pipeline) DB() *gorm.DB { return p.db }

// Execute runs stages in one transaction and, once committed, the effects.
func (p *Pipeline) Execute(ctx context.Context, op string, stages []Stage, effects []Effect) error {
	ctx, span := observability.Tracer("writepath").Start(ctx, "writepath."+op)
	defer span.End()

	start := time.Now()
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, st := range stages {
			if err := st.Run(ctx, tx); err != nil {
				return &StageError{Op: op, Stage: st.Name, Err: err}
			}
		}
		return nil
	})
	observability.PipelineDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		result := "failed"
		if _, ok := apierr.As(err); ok {
			result = "rejected"
		}
		observability.PipelineOps.WithLabelValues(op, result).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		return err
	}
	observability.PipelineOps.WithLabelValues(op, "committed").Inc()

	if len(effects) == 0 {
		return nil
	}
	// Effects outlive the request; keep its values (trace ids) but not its
	// cancellation.
	effCtx := context.WithoutCancel(ctx)
	if !p.cfg.Async {
		p.runEffects(effCtx, op, effects)
		return nil
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runEffects(effCtx, op, effects)
	}()
	return nil
}

// Wait blocks until background effects started so far have finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) runEffects(ctx context.Context, op string, effects []Effect) {
	for _, eff := range effects {
		p.runEffect(ctx, op, eff)
	}
}

func (p *Pipeline) runEffect(ctx context.Context, op string, eff Effect) {
	ctx, span := observability.Tracer("writepath").Start(ctx, "effect."+eff.Name)
	defer span.End()
	span.SetAttributes(attribute.String("op", op))

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = time.Second

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		if attempts > 1 {
			observability.EffectRetries.WithLabelValues(op, eff.Name).Inc()
		}
		actx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
		return struct{}{}, eff.Run(actx)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(p.cfg.MaxTries))
	if err == nil {
		return
	}
	observability.EffectFailures.WithLabelValues(op, eff.Name).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, "effect failed")
	fields := append([]interface{}{
		"op", op,
		"effect", eff.Name,
		"attempts", attempts,
		"error", err,
	}, ctxutil.LogFields(ctx)...)
	p.log.Warn("post-commit effect failed; projection left stale", fields...)
}
