package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Learner-unit validation and transition errors
var (
	// ErrLearnerUnitIDEmpty is returned when a learner unit ID is empty or nil.
	ErrLearnerUnitIDEmpty = errors.New("learner unit ID cannot be empty")

	// ErrLearnerIDEmpty is returned when a learner ID is empty or nil.
	ErrLearnerIDEmpty = errors.New("learner ID cannot be empty")

	// ErrSourceUnitIDEmpty is returned when the source unit reference is empty.
	ErrSourceUnitIDEmpty = errors.New("source unit ID cannot be empty")

	// ErrProgressOutOfRange is returned when a progress value is outside [0,100].
	ErrProgressOutOfRange = errors.New("progress must be between 0 and 100")

	// ErrInvalidTransition is returned when a status change violates the
	// learner unit lifecycle.
	ErrInvalidTransition = errors.New("invalid learner unit status transition")

	// ErrProgressRegression is returned when a progress update would move a
	// unit backwards.
	ErrProgressRegression = errors.New("progress cannot regress")
)

// LearnerUnitStatus represents a materialized unit's position in its lifecycle.
type LearnerUnitStatus string

// Lifecycle: pending → generating → active → completed, with generating →
// failed on unrecoverable error. Locked units are expressed by the absence
// of a materialized row, not by a status; the constant exists only so the
// API can report it.
const (
	LearnerUnitPending    LearnerUnitStatus = "pending"
	LearnerUnitGenerating LearnerUnitStatus = "generating"
	LearnerUnitActive     LearnerUnitStatus = "active"
	LearnerUnitLocked     LearnerUnitStatus = "locked"
	LearnerUnitCompleted  LearnerUnitStatus = "completed"
	LearnerUnitFailed     LearnerUnitStatus = "failed"
)

// AuditEntry records one applied change on a materialized unit, for
// observability of drift between the source curriculum and learner copies.
type AuditEntry struct {
	At     time.Time `json:"at"`
	Change string    `json:"change"`
}

// LearnerUnit is the learner-scoped materialized copy of a curriculum unit.
// At most one exists per (learner, source unit); it is created by the unit
// materializer on first successful generation and never deleted by this
// engine.
type LearnerUnit struct {
	ID           uuid.UUID         `json:"id"`
	LearnerID    uuid.UUID         `json:"learner_id"`
	SourceUnitID uuid.UUID         `json:"source_unit_id"`
	Kind         UnitKind          `json:"kind"`
	Status       LearnerUnitStatus `json:"status"`
	Position     int               `json:"position"`

	// ProfileSnapshotID references the cognitive profile snapshot used at
	// generation time.
	ProfileSnapshotID uuid.UUID `json:"profile_snapshot_id"`

	// DifficultyAdjustment is a bounded scalar in [-0.5, +0.5] stored for
	// downstream rendering; it is never applied destructively to content.
	DifficultyAdjustment float64 `json:"difficulty_adjustment"`

	// Progress is the aggregated completion percentage in [0,100].
	Progress float64 `json:"progress"`

	// AuditTrail is the append-only log of reconciliation changes.
	AuditTrail []AuditEntry `json:"audit_trail,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewLearnerUnit creates the shell of a materialized unit in generating
// state. Returns an error if validation fails.
func NewLearnerUnit(learnerID uuid.UUID, source *CurriculumUnit, profileSnapshotID uuid.UUID, difficultyAdjustment float64) (*LearnerUnit, error) {
	now := time.Now().UTC()
	lu := &LearnerUnit{
		ID:                   uuid.New(),
		LearnerID:            learnerID,
		SourceUnitID:         source.ID,
		Kind:                 source.Kind,
		Status:               LearnerUnitGenerating,
		Position:             source.Position,
		ProfileSnapshotID:    profileSnapshotID,
		DifficultyAdjustment: difficultyAdjustment,
		Progress:             0,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := lu.Validate(); err != nil {
		return nil, err
	}
	return lu, nil
}

// Validate checks if the LearnerUnit has valid data.
func (u *LearnerUnit) Validate() error {
	if u.ID == uuid.Nil {
		return ErrLearnerUnitIDEmpty
	}
	if u.LearnerID == uuid.Nil {
		return ErrLearnerIDEmpty
	}
	if u.SourceUnitID == uuid.Nil {
		return ErrSourceUnitIDEmpty
	}
	if u.Progress < 0 || u.Progress > 100 {
		return ErrProgressOutOfRange
	}
	if u.DifficultyAdjustment < -0.5 || u.DifficultyAdjustment > 0.5 {
		return fmt.Errorf("difficulty adjustment %v outside [-0.5, 0.5]", u.DifficultyAdjustment)
	}
	return nil
}

// validTransitions maps each status to the statuses it may move to.
var validTransitions = map[LearnerUnitStatus][]LearnerUnitStatus{
	LearnerUnitPending:    {LearnerUnitGenerating, LearnerUnitFailed},
	LearnerUnitGenerating: {LearnerUnitActive, LearnerUnitFailed},
	LearnerUnitActive:     {LearnerUnitCompleted},
	LearnerUnitCompleted:  {},
	LearnerUnitFailed:     {},
}

// TransitionTo moves the unit to the given status, enforcing the lifecycle.
// Completed and failed are terminal.
func (u *LearnerUnit) TransitionTo(status LearnerUnitStatus) error {
	for _, allowed := range validTransitions[u.Status] {
		if status == allowed {
			u.Status = status
			u.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, u.Status, status)
}

// RecordProgress applies a progress signal. Progress is monotonic: a lower
// value than the current one is rejected, and a completed unit never
// regresses. Reaching 100 on an active unit completes it.
func (u *LearnerUnit) RecordProgress(percent float64) error {
	if percent < 0 || percent > 100 {
		return ErrProgressOutOfRange
	}
	if u.Status == LearnerUnitCompleted {
		// Terminal; repeated signals are a no-op, not an error.
		return nil
	}
	if percent < u.Progress {
		return fmt.Errorf("%w: %v -> %v", ErrProgressRegression, u.Progress, percent)
	}
	u.Progress = percent
	u.UpdatedAt = time.Now().UTC()
	if percent >= 100 && u.Status == LearnerUnitActive {
		return u.TransitionTo(LearnerUnitCompleted)
	}
	return nil
}

// AppendAudit adds one entry to the unit's audit trail.
func (u *LearnerUnit) AppendAudit(change string) {
	u.AuditTrail = append(u.AuditTrail, AuditEntry{
		At:     time.Now().UTC(),
		Change: change,
	})
	u.UpdatedAt = time.Now().UTC()
}

// LearnerContentItem is the learner-scoped copy of a source content item,
// child of exactly one LearnerUnit. Personalized is nil when the item is a
// pure reference to the authored source.
type LearnerContentItem struct {
	ID            uuid.UUID   `json:"id"`
	LearnerUnitID uuid.UUID   `json:"learner_unit_id"`
	SourceItemID  uuid.UUID   `json:"source_item_id"`
	Kind          ContentKind `json:"kind"`
	Position      int         `json:"position"`

	// Personalized holds the stored transformed payload, or nil when no
	// transformation was needed and the source is referenced directly.
	Personalized json.RawMessage `json:"personalized,omitempty"`

	// Synthesized marks items the engine generated to cover a preference
	// kind with no authored equivalent.
	Synthesized bool `json:"synthesized"`

	// SourceFingerprint is the source item's fingerprint at generation
	// time, used by the reconciler to detect staleness.
	SourceFingerprint uint64 `json:"source_fingerprint"`

	// Retired marks items whose source was removed. Retired items keep
	// their completion record and are excluded from rendering.
	Retired bool `json:"retired"`

	// Interaction completion record.
	Attempts    int        `json:"attempts"`
	Score       float64    `json:"score"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewLearnerContentItem creates a learner copy of a source item.
func NewLearnerContentItem(learnerUnitID uuid.UUID, source *ContentItem, personalized json.RawMessage) *LearnerContentItem {
	now := time.Now().UTC()
	return &LearnerContentItem{
		ID:                uuid.New(),
		LearnerUnitID:     learnerUnitID,
		SourceItemID:      source.ID,
		Kind:              source.Kind,
		Position:          source.Position,
		Personalized:      personalized,
		SourceFingerprint: source.Fingerprint,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// RecordOutcome applies an interaction outcome to the completion record.
func (i *LearnerContentItem) RecordOutcome(score float64, completedAt time.Time) {
	i.Attempts++
	i.Score = score
	i.CompletedAt = &completedAt
	i.UpdatedAt = time.Now().UTC()
}

// Completed reports whether the learner has finished this item.
func (i *LearnerContentItem) Completed() bool {
	return i.CompletedAt != nil
}
