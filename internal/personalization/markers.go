package personalization

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/pathforge/pathforge-api/internal/domain"
)

// markerData is the data exposed to marker templates inside authored
// payloads.
type markerData struct {
	DominantModality string
	Preferences      map[string]float64
	Strengths        []string
	Difficulties     []string
}

// MarkerPersonalizer rewrites the substitutable fragments named by an
// item's marker schema using text/template. Items without markers pass
// through as pure references.
type MarkerPersonalizer struct{}

// NewMarkerPersonalizer creates a MarkerPersonalizer.
func NewMarkerPersonalizer() *MarkerPersonalizer {
	return &MarkerPersonalizer{}
}

// Personalize substitutes the item's marked fragments with profile-derived
// values. Only the string fields named by the marker schema are touched;
// everything else in the payload is preserved byte-for-byte semantics.
func (p *MarkerPersonalizer) Personalize(ctx context.Context, item *domain.ContentItem, profile *domain.Profile) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(item.Markers) == 0 || len(item.Payload) == 0 {
		return &Result{}, nil
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: payload is not a JSON object: %v", ErrPersonalizationFailed, err)
	}

	data := buildMarkerData(profile)
	changed := false

	for _, marker := range item.Markers {
		raw, ok := payload[marker]
		if !ok {
			continue
		}
		var fragment string
		if err := json.Unmarshal(raw, &fragment); err != nil {
			// Marker points at a non-string fragment; leave it alone.
			continue
		}

		rendered, err := renderFragment(marker, fragment, data)
		if err != nil {
			return nil, err
		}
		if rendered == fragment {
			continue
		}

		encoded, err := json.Marshal(rendered)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersonalizationFailed, err)
		}
		payload[marker] = encoded
		changed = true
	}

	if !changed {
		return &Result{}, nil
	}

	transformed, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersonalizationFailed, err)
	}
	return &Result{Transformed: transformed}, nil
}

// renderFragment executes one marked fragment as a template.
func renderFragment(name, fragment string, data markerData) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(fragment)
	if err != nil {
		return "", fmt.Errorf("%w: bad marker template %q: %v", ErrPersonalizationFailed, name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: marker %q: %v", ErrPersonalizationFailed, name, err)
	}
	return buf.String(), nil
}

// buildMarkerData flattens a profile into template data. The dominant
// modality is the highest-scored preference, ties broken alphabetically so
// rendering is deterministic.
func buildMarkerData(profile *domain.Profile) markerData {
	data := markerData{
		Preferences:  make(map[string]float64, len(profile.Preferences)),
		Strengths:    profile.Strengths,
		Difficulties: profile.Difficulties,
	}

	modalities := make([]string, 0, len(profile.Preferences))
	for m, score := range profile.Preferences {
		key := strings.ToLower(string(m))
		data.Preferences[key] = score
		modalities = append(modalities, key)
	}
	sort.Strings(modalities)

	best := -1.0
	for _, m := range modalities {
		if data.Preferences[m] > best {
			best = data.Preferences[m]
			data.DominantModality = m
		}
	}
	return data
}
