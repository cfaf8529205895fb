// Package gemini implements a personalization backend on Google's Gemini
// API. It rewrites the marked fragments of an authored content item to
// match a learner's cognitive profile, returning the transformed payload
// as an opaque JSON document.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"text/template"
	"time"

	"google.golang.org/genai"

	"github.com/pathforge/pathforge-api/internal/config"
	"github.com/pathforge/pathforge-api/internal/domain"
	"github.com/pathforge/pathforge-api/internal/personalization"
)

// defaultPromptTemplate instructs the model to rewrite only the marked
// fields and to answer with a JSON object of the same shape.
const defaultPromptTemplate = `You are adapting learning content to one learner.

Rewrite ONLY these fields of the JSON payload below: {{range .Markers}}{{.}} {{end}}.
Keep every other field byte-for-byte identical. Keep the meaning and the
factual content of rewritten fields; adapt tone, examples and framing to
the learner.

Learner profile:
- dominant modality: {{.DominantModality}}
{{- if .Strengths}}
- strengths: {{range .Strengths}}{{.}} {{end}}{{end}}
{{- if .Difficulties}}
- difficulties: {{range .Difficulties}}{{.}} {{end}}{{end}}

Payload:
{{.Payload}}

Respond with a JSON object of the form {"payload": <rewritten payload>}.`

// GeminiPersonalizer implements the personalization.Personalizer interface
// using Google's Gemini API.
type GeminiPersonalizer struct {
	logger         *slog.Logger
	config         config.LLMConfig
	promptTemplate *template.Template
	client         *genai.Client
	model          string
}

// NewGeminiPersonalizer creates a new GeminiPersonalizer from the LLM
// configuration. Returns personalization.ErrInvalidConfig when the API key
// or model name is missing.
func NewGeminiPersonalizer(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*GeminiPersonalizer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", personalization.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", personalization.ErrInvalidConfig)
	}

	promptTemplate, err := template.New("personalize").Parse(defaultPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v",
			personalization.ErrInvalidConfig, err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			personalization.ErrInvalidConfig, err)
	}

	return &GeminiPersonalizer{
		logger:         logger.With(slog.String("component", "gemini_personalizer")),
		config:         cfg,
		promptTemplate: promptTemplate,
		client:         client,
		model:          cfg.ModelName,
	}, nil
}

// Ensure GeminiPersonalizer implements personalization.Personalizer
var _ personalization.Personalizer = (*GeminiPersonalizer)(nil)

// Personalize implements personalization.Personalizer.Personalize. Items
// without markers pass through as pure references; the model is only ever
// asked to rewrite explicitly substitutable fragments.
func (g *GeminiPersonalizer) Personalize(ctx context.Context, item *domain.ContentItem, profile *domain.Profile) (*personalization.Result, error) {
	if len(item.Markers) == 0 {
		return &personalization.Result{}, nil
	}
	if len(item.Payload) == 0 {
		return nil, fmt.Errorf("%w: item %s", ErrEmptyPayload, item.ID)
	}

	prompt, err := g.createPrompt(item, profile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", personalization.ErrPersonalizationFailed, err)
	}

	response, err := g.callGeminiWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}

	// The model must answer with a payload that is still valid JSON;
	// anything else is a failed personalization, not a transient error.
	var check map[string]json.RawMessage
	if err := json.Unmarshal(response.Payload, &check); err != nil {
		return nil, fmt.Errorf("%w: model returned a non-object payload: %v",
			personalization.ErrPersonalizationFailed, err)
	}

	return &personalization.Result{Transformed: response.Payload}, nil
}

// createPrompt renders the prompt template for one item and profile.
func (g *GeminiPersonalizer) createPrompt(item *domain.ContentItem, profile *domain.Profile) (string, error) {
	data := promptData{
		Payload:          string(item.Payload),
		Markers:          item.Markers,
		DominantModality: dominantModality(profile),
		Strengths:        profile.Strengths,
		Difficulties:     profile.Difficulties,
	}

	var promptBuffer bytes.Buffer
	if err := g.promptTemplate.Execute(&promptBuffer, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return promptBuffer.String(), nil
}

// callGeminiWithRetry makes a call to the Gemini API with exponential
// backoff retry for transient errors. Permanent errors (blocked content,
// malformed responses) are returned immediately without retrying.
func (g *GeminiPersonalizer) callGeminiWithRetry(ctx context.Context, prompt string) (*ResponseSchema, error) {
	maxRetries := g.config.MaxRetries
	baseDelaySeconds := g.config.RetryDelaySeconds
	if maxRetries < 0 {
		maxRetries = 3
	}
	if baseDelaySeconds < 1 {
		baseDelaySeconds = 2
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; ; attempt++ {
		g.logger.DebugContext(ctx, "making Gemini API call",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", maxRetries+1))

		response, transient, err := g.callOnce(ctx, prompt)
		if err == nil {
			return response, nil
		}

		g.logger.WarnContext(ctx, "Gemini API call failed",
			slog.Int("attempt", attempt+1),
			slog.Bool("transient", transient),
			slog.String("error", err.Error()))

		if !transient {
			return nil, err
		}
		if attempt >= maxRetries {
			return nil, fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				personalization.ErrTransientFailure, maxRetries, err)
		}

		// Exponential backoff with jitter:
		// delay = baseDelay * 2^attempt * (0.5 + rand(0, 0.5))
		backoffSeconds := float64(baseDelaySeconds) * math.Pow(2, float64(attempt))
		delay := time.Duration(backoffSeconds * (0.5 + rng.Float64()*0.5) * float64(time.Second))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", personalization.ErrTransientFailure, ctx.Err())
		}
	}
}

// callOnce performs a single API call. The second return reports whether
// a failure is worth retrying.
func (g *GeminiPersonalizer) callOnce(ctx context.Context, prompt string) (*ResponseSchema, bool, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		// API and transport errors are assumed transient.
		return nil, true, fmt.Errorf("%w: %v", personalization.ErrTransientFailure, err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, false, fmt.Errorf("%w: empty model response", personalization.ErrPersonalizationFailed)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return nil, false, fmt.Errorf("%w: content blocked by safety filters", personalization.ErrPersonalizationFailed)
	}

	text := ""
	for _, part := range resp.Candidates[0].Content.Parts {
		text += part.Text
	}

	var parsed ResponseSchema
	if err := json.Unmarshal([]byte(extractJSON(text)), &parsed); err != nil {
		return nil, false, fmt.Errorf("%w: failed to parse model response: %v",
			personalization.ErrPersonalizationFailed, err)
	}
	if len(parsed.Payload) == 0 {
		return nil, false, fmt.Errorf("%w: model response has no payload",
			personalization.ErrPersonalizationFailed)
	}
	return &parsed, false, nil
}

// extractJSON strips markdown code fences the model sometimes wraps its
// JSON answer in.
func extractJSON(text string) string {
	start := -1
	depth := 0
	for i, r := range text {
		switch r {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			depth--
			if depth == 0 && start >= 0 {
				return text[start : i+1]
			}
		}
	}
	return text
}

// dominantModality returns the highest-scoring modality name, "reading"
// when the profile has no preferences.
func dominantModality(profile *domain.Profile) string {
	best := domain.ModalityReading
	bestScore := -1.0
	for modality, score := range profile.Preferences {
		if score > bestScore || (score == bestScore && string(modality) < string(best)) {
			best = modality
			bestScore = score
		}
	}
	return string(best)
}
