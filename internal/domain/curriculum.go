package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Curriculum-specific validation errors
var (
	// ErrUnitIDEmpty is returned when a curriculum unit ID is empty or nil.
	ErrUnitIDEmpty = errors.New("curriculum unit ID cannot be empty")

	// ErrUnitKindInvalid is returned when a unit kind is not module or topic.
	ErrUnitKindInvalid = errors.New("curriculum unit kind must be module or topic")

	// ErrTopicParentMissing is returned when a topic has no parent module reference.
	ErrTopicParentMissing = errors.New("topic must reference a parent module")

	// ErrItemUnitEmpty is returned when a content item has no owning unit.
	ErrItemUnitEmpty = errors.New("content item must belong to a unit")

	// ErrItemKindInvalid is returned when a content kind is not a known variant.
	ErrItemKindInvalid = errors.New("content item kind is not a known variant")

	// ErrItemPayloadInvalid is returned when a content item payload is not valid JSON.
	ErrItemPayloadInvalid = errors.New("content item payload must be valid JSON")
)

// UnitKind identifies the level of a curriculum unit.
type UnitKind string

// Possible unit kinds
const (
	UnitKindModule UnitKind = "module"
	UnitKindTopic  UnitKind = "topic"
)

// ContentKind tags the variant of a content item. Every learner-facing
// artifact (lesson text, exercise, quiz) is one ContentItem variant with a
// kind tag rather than a parallel model per artifact type.
type ContentKind string

// Possible content kinds
const (
	ContentKindStatic      ContentKind = "static"
	ContentKindInteractive ContentKind = "interactive"
	ContentKindAssessment  ContentKind = "assessment"
)

// Modality describes the sensory channel a content item primarily serves.
// It is matched against the learner profile's preference scores during
// content selection.
type Modality string

// Possible modalities
const (
	ModalityVisual      Modality = "visual"
	ModalityAuditory    Modality = "auditory"
	ModalityKinesthetic Modality = "kinesthetic"
	ModalityReading     Modality = "reading"
)

// CurriculumUnit is a module or topic in the authored source content tree.
// Units are owned by the content-authoring system; this engine only reads
// them. The Publishable and Enabled flags have exactly one mutation entry
// point on the authoring side — everything here is a read-only view.
type CurriculumUnit struct {
	ID       uuid.UUID     `json:"id"`
	ParentID uuid.NullUUID `json:"parent_id"`
	PlanID   uuid.UUID     `json:"plan_id"`
	Kind     UnitKind      `json:"kind"`
	Title    string        `json:"title"`

	// Position is the unit's declared order among its siblings.
	Position int `json:"position"`

	// Publishable is set by the content owner when the unit is ready for
	// learner materialization.
	Publishable bool `json:"publishable"`

	// Enabled is the module-level materialization switch. Topics inherit
	// it from their parent module.
	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks structural invariants of the unit.
func (u *CurriculumUnit) Validate() error {
	if u.ID == uuid.Nil {
		return ErrUnitIDEmpty
	}
	if u.Kind != UnitKindModule && u.Kind != UnitKindTopic {
		return ErrUnitKindInvalid
	}
	if u.Kind == UnitKindTopic && !u.ParentID.Valid {
		return ErrTopicParentMissing
	}
	return nil
}

// Eligible reports whether the unit may be materialized for learners.
// A module is eligible when it is publishable and enabled. A topic is
// eligible when it is publishable and its parent module is enabled; the
// caller supplies the parent (nil for modules).
func (u *CurriculumUnit) Eligible(parent *CurriculumUnit) bool {
	if !u.Publishable {
		return false
	}
	switch u.Kind {
	case UnitKindModule:
		return u.Enabled
	case UnitKindTopic:
		return parent != nil && parent.Enabled
	default:
		return false
	}
}

// ContentItem is a single learner-facing artifact belonging to a unit.
// Cross-cutting items list every covering unit in CoveringUnitIDs and are
// materialized only once, attached to the last covering unit in curriculum
// order.
type ContentItem struct {
	ID     uuid.UUID `json:"id"`
	UnitID uuid.UUID `json:"unit_id"`

	// CoveringUnitIDs is empty for ordinary items. When non-empty it lists
	// all units the item spans, in curriculum order.
	CoveringUnitIDs []uuid.UUID `json:"covering_unit_ids,omitempty"`

	Kind     ContentKind `json:"kind"`
	Modality Modality    `json:"modality"`
	Position int         `json:"position"`

	// Payload is the opaque authored content.
	Payload json.RawMessage `json:"payload"`

	// Markers names the substitutable fragments inside the payload that the
	// personalization layer may rewrite.
	Markers []string `json:"markers,omitempty"`

	// NoAutoGenerate forbids synthesizing a personalized stand-in for this
	// item's kind (e.g. diagrams).
	NoAutoGenerate bool `json:"no_auto_generate"`

	// Fingerprint is the xxhash of the normalized payload, maintained by
	// the authoring side and compared by the change reconciler.
	Fingerprint uint64 `json:"fingerprint"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks structural invariants of the content item.
func (c *ContentItem) Validate() error {
	if c.ID == uuid.Nil {
		return errors.New("content item ID cannot be empty")
	}
	if c.UnitID == uuid.Nil {
		return ErrItemUnitEmpty
	}
	switch c.Kind {
	case ContentKindStatic, ContentKindInteractive, ContentKindAssessment:
	default:
		return ErrItemKindInvalid
	}
	if len(c.Payload) > 0 {
		var js json.RawMessage
		if err := json.Unmarshal(c.Payload, &js); err != nil {
			return ErrItemPayloadInvalid
		}
	}
	return nil
}

// CrossCutting reports whether the item spans multiple units.
func (c *ContentItem) CrossCutting() bool {
	return len(c.CoveringUnitIDs) > 1
}

// AnchoredTo reports whether the given unit is the one this item should
// materialize under. Ordinary items anchor to their owning unit;
// cross-cutting items anchor only to the last covering unit.
func (c *ContentItem) AnchoredTo(unitID uuid.UUID) bool {
	if !c.CrossCutting() {
		return c.UnitID == unitID
	}
	return c.CoveringUnitIDs[len(c.CoveringUnitIDs)-1] == unitID
}
