package gemini

import "encoding/json"

// promptData is the data passed to the prompt template.
type promptData struct {
	// Payload is the authored content item payload, as JSON text.
	Payload string

	// Markers names the payload fields the model may rewrite.
	Markers []string

	// DominantModality is the learner's highest-scoring modality.
	DominantModality string

	// Strengths and Difficulties are the learner's cognitive markers.
	Strengths    []string
	Difficulties []string
}

// ResponseSchema is the structured response expected from the model: the
// rewritten payload, still a JSON object with the same field set as the
// input.
type ResponseSchema struct {
	Payload json.RawMessage `json:"payload"`
}
