package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// Client is the minimal surface the pipeline needs from a generative model.
// Cross-cutting concerns (rate limiting, retries, logging) are applied via
// Middleware, not baked into implementations.
type Client interface {
	Name() string
	// GenerateJSON sends prompt plus a marshaled input payload and returns
	// the model's strict-JSON response.
	GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error)
	// GenerateText is like GenerateJSON but returns free-form text.
	GenerateText(ctx context.Context, prompt string, input any) (string, error)
	Close() error
}

// StripFences removes a leading/trailing markdown code fence from a model
// response. Models occasionally wrap JSON in ```json blocks even when asked
// not to.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[3:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
