package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrOutcomeScoreInvalid is returned when an outcome score is outside [0,100].
var ErrOutcomeScoreInvalid = errors.New("outcome score must be between 0 and 100")

// OutcomeRecord is one learner interaction result, keyed by the learner
// content item it was recorded against. Every interaction variant (quiz
// answer, assignment submission, resource view) is one OutcomeRecord with
// the source item's kind tag rather than a special-cased model per
// artifact type.
type OutcomeRecord struct {
	ID            uuid.UUID   `json:"id"`
	LearnerID     uuid.UUID   `json:"learner_id"`
	LearnerItemID uuid.UUID   `json:"learner_item_id"`
	Kind          ContentKind `json:"kind"`
	Score         float64     `json:"score"`
	Completed     bool        `json:"completed"`
	RecordedAt    time.Time   `json:"recorded_at"`
}

// NewOutcomeRecord creates a validated outcome record.
func NewOutcomeRecord(learnerID, learnerItemID uuid.UUID, kind ContentKind, score float64, completed bool) (*OutcomeRecord, error) {
	if score < 0 || score > 100 {
		return nil, ErrOutcomeScoreInvalid
	}
	return &OutcomeRecord{
		ID:            uuid.New(),
		LearnerID:     learnerID,
		LearnerItemID: learnerItemID,
		Kind:          kind,
		Score:         score,
		Completed:     completed,
		RecordedAt:    time.Now().UTC(),
	}, nil
}
