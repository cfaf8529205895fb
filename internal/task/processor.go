// Package task consumes the durable generation queue. The queue itself is
// the single coordination point across short-lived invocations: draining
// happens when an external caller invokes ProcessBatch, there are no
// long-lived background workers.
package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/materializer"
	"github.com/pathforge/pathforge-api/internal/platform/logger"
	"github.com/pathforge/pathforge-api/internal/reconciler"
	"github.com/pathforge/pathforge-api/internal/store"
)

// ErrRetryExhausted marks a task that failed its final attempt. It is
// terminal and must surface to the caller — never a silent infinite retry.
var ErrRetryExhausted = errors.New("task failed after maximum retry attempts")

// Defaults for the processor configuration.
const (
	DefaultMaxRetries  = 3
	DefaultBatchSize   = 10
	DefaultBackoffBase = 30 * time.Second
	DefaultGCRetention = 7 * 24 * time.Hour
)

// Config holds processor tuning.
type Config struct {
	// MaxRetries bounds attempts per task before terminal failure.
	MaxRetries int

	// BatchSize caps tasks claimed per ProcessBatch invocation, keeping a
	// single invocation short-lived.
	BatchSize int

	// StaleAfter is how long a task may sit in processing before the
	// reaper assumes its worker crashed and resets it to pending.
	StaleAfter time.Duration

	// BackoffBase spaces retries linearly: a task with n failures is not
	// eligible again until n * BackoffBase after its last failure.
	BackoffBase time.Duration

	// GCRetention is how long terminal tasks are kept before garbage
	// collection.
	GCRetention time.Duration
}

// DefaultConfig returns a Config with reasonable defaults. StaleAfter
// defaults to five times the materializer deadline; it is a tunable, not a
// fixed assumption.
func DefaultConfig(deadline time.Duration) Config {
	return Config{
		MaxRetries:  DefaultMaxRetries,
		BatchSize:   DefaultBatchSize,
		StaleAfter:  5 * deadline,
		BackoffBase: DefaultBackoffBase,
		GCRetention: DefaultGCRetention,
	}
}

// Result is the outcome of one processed task.
type Result struct {
	TaskID    uuid.UUID            `json:"task_id"`
	Kind      domain.TaskKind      `json:"kind"`
	LearnerID uuid.UUID            `json:"learner_id"`
	UnitID    uuid.UUID            `json:"unit_id"`
	Status    domain.TaskStatus    `json:"status"`
	Outcome   materializer.Outcome `json:"outcome,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// Processor drains the generation queue, dispatching each task on its
// kind: generate tasks to the materializer, update tasks to the
// reconciler.
type Processor struct {
	tasks    store.TaskStore
	learners store.LearnerStore
	profiles store.ProfileStore
	mat      *materializer.Materializer
	rec      *reconciler.Reconciler
	cfg      Config
}

// NewProcessor creates a Processor. Zero config fields fall back to
// defaults derived from the materializer's deadline.
func NewProcessor(
	tasks store.TaskStore,
	learners store.LearnerStore,
	profiles store.ProfileStore,
	mat *materializer.Materializer,
	rec *reconciler.Reconciler,
	cfg Config,
) *Processor {
	def := DefaultConfig(mat.Deadline())
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.GCRetention <= 0 {
		cfg.GCRetention = def.GCRetention
	}
	return &Processor{
		tasks:    tasks,
		learners: learners,
		profiles: profiles,
		mat:      mat,
		rec:      rec,
		cfg:      cfg,
	}
}

// ProcessBatch reaps stale tasks, then claims and executes up to max
// pending tasks (capped by the configured batch size). Returns one Result
// per processed task; task execution errors are reported in the results,
// not returned, so one bad task never blocks the rest of the batch.
func (p *Processor) ProcessBatch(ctx context.Context, max int) ([]Result, error) {
	log := logger.FromContext(ctx)

	if max <= 0 || max > p.cfg.BatchSize {
		max = p.cfg.BatchSize
	}

	reaped, err := p.tasks.ReapStale(ctx, p.cfg.StaleAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to reap stale tasks: %w", err)
	}
	if reaped > 0 {
		log.Warn("reset stale processing tasks", "count", reaped)
	}

	if removed, err := p.tasks.DeleteTerminal(ctx, p.cfg.GCRetention); err != nil {
		log.Warn("terminal task garbage collection failed", "error", err)
	} else if removed > 0 {
		log.Debug("garbage collected terminal tasks", "count", removed)
	}

	claimed, err := p.tasks.DequeueNext(ctx, max)
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue tasks: %w", err)
	}

	results := make([]Result, 0, len(claimed))
	for _, task := range claimed {
		results = append(results, p.process(ctx, task))
	}
	log.Info("queue batch processed", "claimed", len(claimed), "reaped", reaped)
	return results, nil
}

// process executes one claimed task and settles its status.
func (p *Processor) process(ctx context.Context, task *domain.GenerationTask) Result {
	log := logger.FromContext(ctx).With(
		"task_id", task.ID,
		"task_kind", task.Kind,
		"learner_id", task.LearnerID,
		"unit_id", task.UnitID,
	)
	result := Result{TaskID: task.ID, Kind: task.Kind, LearnerID: task.LearnerID, UnitID: task.UnitID}

	var outcome materializer.Outcome
	var err error
	switch task.Kind {
	case domain.TaskKindGenerateUnit:
		outcome, err = p.generate(ctx, task)
	case domain.TaskKindUpdateUnit:
		err = p.rec.ApplyUpdate(ctx, task)
	default:
		err = fmt.Errorf("unknown task kind %q", task.Kind)
	}
	result.Outcome = outcome

	if err == nil {
		task.Status = domain.TaskStatusCompleted
		if updateErr := p.tasks.Update(ctx, task); updateErr != nil {
			log.Error("failed to mark task completed", "error", updateErr)
		}
		result.Status = task.Status
		return result
	}

	// Structural failures are terminal immediately; transient ones retry
	// up to the bound.
	task.RecordFailure(err.Error())
	switch {
	case errors.Is(err, materializer.ErrSourceMissing):
		task.Status = domain.TaskStatusFailed
		if markErr := p.mat.MarkFailed(ctx, task.LearnerID, task.UnitID, err.Error()); markErr != nil {
			log.Error("failed to mark learner unit failed", "error", markErr)
		}
		log.Error("task failed on missing source, not retrying", "error", err)
	case task.RetryCount >= p.cfg.MaxRetries:
		task.Status = domain.TaskStatusFailed
		task.ErrorDetail += "; " + ErrRetryExhausted.Error()
		result.Error = ErrRetryExhausted.Error() + ": " + err.Error()
		log.Error("task retries exhausted", "retries", task.RetryCount, "error", err)
	default:
		task.Status = domain.TaskStatusPending
		log.Warn("task failed, scheduled for retry",
			"retry", task.RetryCount,
			"backoff", time.Duration(task.RetryCount)*p.cfg.BackoffBase,
			"error", err)
	}
	if result.Error == "" {
		result.Error = err.Error()
	}
	if updateErr := p.tasks.Update(ctx, task); updateErr != nil {
		log.Error("failed to settle task status", "error", updateErr)
	}
	result.Status = task.Status
	return result
}

// generate runs one generate task: a full unit materialization, or a
// single-item completion for follow-ups after a partial run.
func (p *Processor) generate(ctx context.Context, task *domain.GenerationTask) (materializer.Outcome, error) {
	profile, err := p.profiles.GetLatest(ctx, task.LearnerID)
	if err != nil {
		return "", fmt.Errorf("failed to load profile: %w", err)
	}

	if task.ItemID.Valid {
		unit, err := p.learners.GetUnitBySource(ctx, task.LearnerID, task.UnitID)
		if err != nil {
			return "", fmt.Errorf("failed to load learner unit for item completion: %w", err)
		}
		if err := p.mat.CompleteItem(ctx, unit, task.ItemID.UUID, profile); err != nil {
			return "", err
		}
		return materializer.OutcomeOK, nil
	}

	// A partial outcome completes this task: the unit is committed and its
	// stragglers carry their own follow-up tasks.
	_, outcome, err := p.mat.Materialize(ctx, task.LearnerID, task.UnitID, profile)
	return outcome, err
}
