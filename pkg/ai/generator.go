package ai

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/platinummonkey/larder/pkg/apperr"
	"github.com/platinummonkey/larder/pkg/observability"
)

// TextGenerator produces text from a system prompt and a user prompt
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// RecipeGenerator turns a user prompt into a recipe JSON document
type RecipeGenerator struct {
	text    TextGenerator
	prompt  PromptSource
	metrics *observability.Metrics
}

// NewRecipeGenerator creates a generator. A nil text generator makes every
// call fail with UpstreamFailure.
func NewRecipeGenerator(text TextGenerator, prompt PromptSource, metrics *observability.Metrics) *RecipeGenerator {
	if prompt == nil {
		prompt = StaticPrompt(DefaultPrompt)
	}
	return &RecipeGenerator{text: text, prompt: prompt, metrics: metrics}
}

// Generate returns the model's recipe object. The payload is only
// guaranteed to be a JSON object with a non-empty title.
func (g *RecipeGenerator) Generate(ctx context.Context, userPrompt string) (json.RawMessage, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return nil, apperr.New(apperr.Invalid, "prompt is required")
	}
	if g.text == nil {
		return nil, apperr.New(apperr.UpstreamFailure, "AI generation is not configured")
	}

	start := time.Now()
	payload, err := g.generate(ctx, userPrompt)
	g.metrics.RecordAIGeneration(start, err)
	if err != nil {
		observability.FromContext(ctx).WithError(err).Warn("AI recipe generation failed")
		return nil, apperr.Wrap(apperr.UpstreamFailure, "error while generating the recipe", err)
	}
	return payload, nil
}

func (g *RecipeGenerator) generate(ctx context.Context, userPrompt string) (json.RawMessage, error) {
	text, err := g.text.GenerateText(ctx, g.prompt.Prompt(), userPrompt)
	if err != nil {
		return nil, err
	}
	payload := json.RawMessage(StripCodeFences(text))

	var head struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return nil, err
	}
	if strings.TrimSpace(head.Title) == "" {
		return nil, errMissingTitle
	}
	return payload, nil
}

type generatorError string

func (e generatorError) Error() string { return string(e) }

const errMissingTitle = generatorError("generated recipe has no title")

// StripCodeFences removes a surrounding ``` or ```json fence
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
