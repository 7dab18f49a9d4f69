package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"cinegen-server/modules/common/gemini"
	"cinegen-server/modules/common/logger"
	"cinegen-server/modules/common/model"
)

// Client - the three generative capabilities the workflow depends on
type Client interface {
	AnalyzeImage(ctx context.Context, image []byte, mimeType string) (*model.VisualStyleTemplate, error)
	AnalyzeScript(ctx context.Context, script string) (*model.ScriptStyleTemplate, error)
	GenerateProject(ctx context.Context, visual model.VisualStyleTemplate, script model.ScriptStyleTemplate, settings model.ProjectSettings) ([]model.GeneratedScene, error)
}

// ErrEmptyResponse - the model returned no text parts
var ErrEmptyResponse = errors.New("empty response from model")

// ErrSceneCountMismatch - strict mode only: the model returned a different number of scenes
var ErrSceneCountMismatch = errors.New("scene count mismatch")

// GeminiClient - Client backed by Gemini structured JSON output
type GeminiClient struct {
	gen         gemini.ContentGenerator
	modelName   string
	timeout     time.Duration
	strictCount bool
}

// NewGeminiClient - timeout <= 0 leaves the caller's deadline alone
func NewGeminiClient(gen gemini.ContentGenerator, modelName string, timeout time.Duration, strictSceneCount bool) *GeminiClient {
	return &GeminiClient{
		gen:         gen,
		modelName:   modelName,
		timeout:     timeout,
		strictCount: strictSceneCount,
	}
}

func (c *GeminiClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// generate - one request, concatenated text of the first candidate
func (c *GeminiClient) generate(ctx context.Context, parts []*genai.Part, cfg *genai.GenerateContentConfig) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	contents := []*genai.Content{{Role: "user", Parts: parts}}
	resp, err := c.gen.GenerateContent(ctx, c.modelName, contents, cfg)
	if err != nil {
		return "", err
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.Text != "" {
				b.WriteString(part.Text)
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

// AnalyzeImage - reference image to VisualStyleTemplate
func (c *GeminiClient) AnalyzeImage(ctx context.Context, image []byte, mimeType string) (*model.VisualStyleTemplate, error) {
	log := logger.WithModule("Capability")
	log.Infof("🎨 [Capability] Analyzing reference image (%d bytes, %s)", len(image), mimeType)

	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
		{Text: visualAnalysisPrompt},
	}
	text, err := c.generate(ctx, parts, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   visualStyleSchema(),
	})
	if err != nil {
		return nil, &model.AnalysisError{Target: model.AnalysisImage, Err: err}
	}

	template, err := ParseVisualStyle(text)
	if err != nil {
		return nil, &model.AnalysisError{Target: model.AnalysisImage, Err: err}
	}
	log.Infof("✅ [Capability] Visual style extracted: %s", template.ArtStyle)
	return template, nil
}

// AnalyzeScript - reference script to ScriptStyleTemplate
func (c *GeminiClient) AnalyzeScript(ctx context.Context, script string) (*model.ScriptStyleTemplate, error) {
	log := logger.WithModule("Capability")
	log.Infof("📝 [Capability] Analyzing reference script (%d chars)", len([]rune(script)))

	text, err := c.generate(ctx, []*genai.Part{{Text: buildScriptAnalysisPrompt(script)}}, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   scriptStyleSchema(),
	})
	if err != nil {
		return nil, &model.AnalysisError{Target: model.AnalysisScript, Err: err}
	}

	template, err := ParseScriptStyle(text)
	if err != nil {
		return nil, &model.AnalysisError{Target: model.AnalysisScript, Err: err}
	}
	log.Infof("✅ [Capability] Script style extracted: %s", template.NarrativeTone)
	return template, nil
}

// GenerateProject - both templates plus settings to an ordered scene list
func (c *GeminiClient) GenerateProject(
	ctx context.Context,
	visual model.VisualStyleTemplate,
	script model.ScriptStyleTemplate,
	settings model.ProjectSettings,
) ([]model.GeneratedScene, error) {
	log := logger.WithModule("Capability")
	log.Infof("🎬 [Capability] Generating project %q with %d scene(s)", settings.Title, settings.SceneCount)

	prompt, err := buildGenerationPrompt(visual, script, settings)
	if err != nil {
		return nil, &model.GenerationError{Err: err}
	}

	text, err := c.generate(ctx, []*genai.Part{{Text: prompt}}, &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: buildGenerationSystemInstruction(settings)}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    scenesSchema(),
	})
	if err != nil {
		return nil, &model.GenerationError{Err: err}
	}

	scenes, err := ParseScenes(text)
	if err != nil {
		return nil, &model.GenerationError{Err: err}
	}

	if len(scenes) != settings.SceneCount {
		if c.strictCount {
			return nil, &model.GenerationError{Err: fmt.Errorf("%w: requested %d, got %d", ErrSceneCountMismatch, settings.SceneCount, len(scenes))}
		}
		log.Warnf("⚠️  [Capability] Requested %d scene(s), model returned %d", settings.SceneCount, len(scenes))
	}
	if bad := numberingAnomalies(scenes); len(bad) > 0 {
		log.Warnf("⚠️  [Capability] Scene numbering is not sequential at index(es) %v", bad)
	}

	log.Infof("✅ [Capability] Generated %d scene(s)", len(scenes))
	return scenes, nil
}
