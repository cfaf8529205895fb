package materializer

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/pathforge/pathforge-api/internal/domain"
)

// Relative weights of the preference match and the kind base score when
// ranking candidate items.
const (
	modalityWeight = 0.7
	kindWeight     = 0.3
)

// kindBase biases selection so every unit keeps a didactic core: static
// exposition ranks above interaction, interaction above assessment, all
// else being equal.
var kindBase = map[domain.ContentKind]float64{
	domain.ContentKindStatic:      1.0,
	domain.ContentKindInteractive: 0.8,
	domain.ContentKindAssessment:  0.6,
}

// kindOrder fixes the round-robin order used when interleaving kinds.
var kindOrder = []domain.ContentKind{
	domain.ContentKindStatic,
	domain.ContentKindInteractive,
	domain.ContentKindAssessment,
}

// selectItems picks the content items to materialize for a unit: authored
// items anchored to the unit, scored against the profile's preference
// vector, interleaved across kinds up to TopN, plus synthesized
// placeholders for strongly-preferred modalities no authored item serves.
func (m *Materializer) selectItems(items []*domain.ContentItem, unitID uuid.UUID, profile *domain.Profile) []*domain.ContentItem {
	groups := make(map[domain.ContentKind][]*domain.ContentItem)
	blockedModalities := make(map[domain.Modality]bool)
	for _, blocked := range m.cfg.NoAutoGenerate {
		blockedModalities[blocked] = true
	}

	for _, item := range items {
		// Cross-cutting items materialize once, under their last covering
		// unit only.
		if !item.AnchoredTo(unitID) {
			continue
		}
		if item.NoAutoGenerate {
			// Authors opted this modality out of engine synthesis.
			blockedModalities[item.Modality] = true
		}
		groups[item.Kind] = append(groups[item.Kind], item)
	}

	for _, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			si, sj := m.score(group[i], profile), m.score(group[j], profile)
			if si != sj {
				return si > sj
			}
			return group[i].Position < group[j].Position
		})
	}

	// Interleave kinds so the bounded selection always spans every authored
	// kind before doubling up on any one of them.
	selected := make([]*domain.ContentItem, 0, m.cfg.TopN)
	for len(selected) < m.cfg.TopN {
		progressed := false
		for _, kind := range kindOrder {
			if len(groups[kind]) == 0 {
				continue
			}
			selected = append(selected, groups[kind][0])
			groups[kind] = groups[kind][1:]
			progressed = true
			if len(selected) == m.cfg.TopN {
				break
			}
		}
		if !progressed {
			break
		}
	}

	covered := make(map[domain.Modality]bool, len(selected))
	for _, item := range selected {
		covered[item.Modality] = true
	}

	// Synthesize placeholders only for preferences the authored content
	// cannot serve, and never for opted-out modalities.
	for _, modality := range orderedModalities(profile) {
		if len(selected) >= m.cfg.TopN {
			break
		}
		if covered[modality] || blockedModalities[modality] {
			continue
		}
		if profile.PreferenceFor(modality) < m.cfg.SynthesizeFloor {
			continue
		}
		selected = append(selected, synthesizeItem(unitID, modality))
		covered[modality] = true
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Position < selected[j].Position
	})
	return selected
}

// score ranks one authored item against the profile.
func (m *Materializer) score(item *domain.ContentItem, profile *domain.Profile) float64 {
	return modalityWeight*profile.PreferenceFor(item.Modality) + kindWeight*kindBase[item.Kind]
}

// orderedModalities returns the profile's modalities sorted by preference
// descending, ties broken alphabetically for determinism.
func orderedModalities(profile *domain.Profile) []domain.Modality {
	modalities := make([]domain.Modality, 0, len(profile.Preferences))
	for m := range profile.Preferences {
		modalities = append(modalities, m)
	}
	sort.Slice(modalities, func(i, j int) bool {
		pi, pj := profile.PreferenceFor(modalities[i]), profile.PreferenceFor(modalities[j])
		if pi != pj {
			return pi > pj
		}
		return modalities[i] < modalities[j]
	})
	return modalities
}

// synthesizeItem builds a placeholder source item for a modality no
// authored content covers. The zero CreatedAt marks it as synthesized for
// downstream bookkeeping; the marker lets the personalizer fill the body.
func synthesizeItem(unitID uuid.UUID, modality domain.Modality) *domain.ContentItem {
	payload, _ := json.Marshal(map[string]string{
		"title": fmt.Sprintf("Supplementary %s material", modality),
		"body":  "This placeholder adapts to your {{.DominantModality}} learning preference.",
	})
	return &domain.ContentItem{
		ID:       uuid.New(),
		UnitID:   unitID,
		Kind:     domain.ContentKindStatic,
		Modality: modality,
		Position: 1 << 10, // after all authored items
		Payload:  payload,
		Markers:  []string{"body"},
	}
}
