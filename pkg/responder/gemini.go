// Package responder provides the production AIResponder adapter backed by
// the Gemini API.
package responder

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/voxroom/voxroom/pkg/core"
	"github.com/voxroom/voxroom/pkg/core/types"
	"github.com/voxroom/voxroom/pkg/live"
)

const DefaultModel = "gemini-2.0-flash"

// Gemini implements live.Responder against the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini builds an adapter with the given API key. Model falls back to
// DefaultModel when empty.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini API key must be provided")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// GetResponse runs one generation turn over the session's recent history.
func (g *Gemini) GetResponse(ctx context.Context, userText string, sctx types.SessionContext) (live.Result, error) {
	contents := buildContents(userText, sctx.History)

	cfg := &genai.GenerateContentConfig{}
	if instruction := buildInstruction(sctx); instruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(instruction, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return live.Result{}, core.NewUnavailableError("responder", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return live.Result{}, core.NewUnavailableError("responder", fmt.Errorf("empty response"))
	}
	return live.Result{Text: text}, nil
}

func buildContents(userText string, hist []types.HistoryEntry) []*genai.Content {
	contents := make([]*genai.Content, 0, 2*len(hist)+1)
	for _, e := range hist {
		if e.UserText != "" {
			contents = append(contents, genai.NewContentFromText(e.UserText, genai.RoleUser))
		}
		if e.AIText != "" {
			contents = append(contents, genai.NewContentFromText(e.AIText, genai.RoleModel))
		}
	}
	contents = append(contents, genai.NewContentFromText(userText, genai.RoleUser))
	return contents
}

func buildInstruction(sctx types.SessionContext) string {
	var parts []string
	if s := strings.TrimSpace(sctx.SystemInstruction); s != "" {
		parts = append(parts, s)
	}
	if sctx.Language != "" {
		parts = append(parts, fmt.Sprintf("Respond in the language with code %q.", sctx.Language))
	}
	return strings.Join(parts, "\n\n")
}
