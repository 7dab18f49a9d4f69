package gemini

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"cinegen-server/modules/common/config"
	"cinegen-server/modules/common/logger"
)

// ContentGenerator - the single Gemini call every capability goes through.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewCaller - build one genai client per configured key (or one Vertex AI client)
func NewCaller(ctx context.Context, cfg *config.Config) (*Caller, error) {
	log := logger.WithModule("Gemini")

	var generators []ContentGenerator
	if cfg.UseVertexAI {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			Project:  cfg.VertexAIProject,
			Location: cfg.VertexAILocation,
			Backend:  genai.BackendVertexAI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
		}
		log.Infof("✅ [Gemini] Vertex AI client initialized for project=%s, location=%s", cfg.VertexAIProject, cfg.VertexAILocation)
		generators = append(generators, client.Models)
	} else {
		for i, apiKey := range cfg.GeminiAPIKeys {
			client, err := genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:  apiKey,
				Backend: genai.BackendGeminiAPI,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create Gemini client for key #%d: %w", i+1, err)
			}
			generators = append(generators, client.Models)
		}
		log.Infof("✅ [Gemini] %d API client(s) initialized", len(generators))
	}

	var limiter *rate.Limiter
	if cfg.GeminiRateInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.GeminiRateInterval), 1)
	}

	return NewCallerWith(generators, limiter), nil
}
