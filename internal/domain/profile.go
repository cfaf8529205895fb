package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Profile validation errors
var (
	// ErrProfileIDEmpty is returned when a profile ID is empty or nil.
	ErrProfileIDEmpty = errors.New("profile ID cannot be empty")

	// ErrProfileLearnerEmpty is returned when a profile has no learner reference.
	ErrProfileLearnerEmpty = errors.New("profile learner ID cannot be empty")
)

// Difficulty adjustment tuning. Each recorded cognitive difficulty
// subtracts a penalty, each strength adds a bonus, and the result is
// clamped to [-0.5, +0.5].
const (
	difficultyPenalty = 0.1
	strengthBonus     = 0.05

	// DifficultyAdjustmentMin and DifficultyAdjustmentMax bound the stored
	// adjustment scalar.
	DifficultyAdjustmentMin = -0.5
	DifficultyAdjustmentMax = 0.5
)

// Profile is a snapshot of a learner's cognitive profile as supplied by
// the profile provider. The materializer records the snapshot ID on every
// unit it generates so the inputs of a generation are reconstructable.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	LearnerID uuid.UUID `json:"learner_id"`

	// Preferences maps modality to a score in [0,1] (a VAK-like vector).
	Preferences map[Modality]float64 `json:"preferences"`

	// Strengths and Difficulties are recorded cognitive markers, e.g.
	// "pattern-recognition" or "working-memory".
	Strengths    []string `json:"strengths,omitempty"`
	Difficulties []string `json:"difficulties,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks if the Profile has valid data.
func (p *Profile) Validate() error {
	if p.ID == uuid.Nil {
		return ErrProfileIDEmpty
	}
	if p.LearnerID == uuid.Nil {
		return ErrProfileLearnerEmpty
	}
	return nil
}

// PreferenceFor returns the profile's score for a modality, zero when the
// modality is unscored.
func (p *Profile) PreferenceFor(m Modality) float64 {
	if p.Preferences == nil {
		return 0
	}
	return p.Preferences[m]
}

// DifficultyAdjustment derives the bounded adjustment scalar from the
// profile's cognitive markers.
func (p *Profile) DifficultyAdjustment() float64 {
	adj := strengthBonus*float64(len(p.Strengths)) - difficultyPenalty*float64(len(p.Difficulties))
	if adj < DifficultyAdjustmentMin {
		return DifficultyAdjustmentMin
	}
	if adj > DifficultyAdjustmentMax {
		return DifficultyAdjustmentMax
	}
	return adj
}
