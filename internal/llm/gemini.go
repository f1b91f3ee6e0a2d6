package llm

import (
	"context"
	"encoding/json"
	"fmt"

	genai "google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client. It only
// focuses on the API call itself; rate limiting, retries and logging are
// applied via Middleware.
type GeminiClient struct {
	cli   *genai.Client
	model string
}

// NewGemini creates a Gemini-backed client. The genai SDK reads the API key
// from GEMINI_API_KEY / GOOGLE_API_KEY.
func NewGemini(ctx context.Context, model string) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiClient{cli: cli, model: model}, nil
}

func (g *GeminiClient) Name() string { return "gemini:" + g.model }
func (g *GeminiClient) Close() error { return nil }

// GenerateJSON concatenates prompt and input, asks for application/json,
// and returns the model's JSON as json.RawMessage. An empty or non-JSON
// response is a permanent error; transport errors are left as-is so the
// retry middleware treats them as transient.
func (g *GeminiClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	txt, err := g.generate(ctx, prompt, input, "application/json")
	if err != nil {
		return nil, err
	}
	txt = StripFences(txt)
	if !json.Valid([]byte(txt)) {
		return nil, Permanent(ErrInvalidJSON)
	}
	return json.RawMessage(txt), nil
}

func (g *GeminiClient) GenerateText(ctx context.Context, prompt string, input any) (string, error) {
	return g.generate(ctx, prompt, input, "")
}

func (g *GeminiClient) generate(ctx context.Context, prompt string, input any, mime string) (string, error) {
	full := prompt
	if input != nil {
		in, _ := json.MarshalIndent(input, "", "  ")
		full = prompt + "\n\n[INPUT JSON]\n" + string(in)
	}

	cfg := &genai.GenerateContentConfig{}
	if mime != "" {
		cfg.ResponseMIMEType = mime
	}
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: full}}}},
		cfg,
	)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", Permanent(fmt.Errorf("empty response from %s", g.Name()))
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}
