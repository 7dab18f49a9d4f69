package gemini

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"cinegen-server/modules/common/logger"
)

// Caller - sends each request once, moving to the next API key only when
// the current key is out of quota. A failed request is never re-sent on the
// same key.
type Caller struct {
	generators []ContentGenerator
	limiter    *rate.Limiter
}

// NewCallerWith - caller over ready-made generators; limiter may be nil
func NewCallerWith(generators []ContentGenerator, limiter *rate.Limiter) *Caller {
	return &Caller{generators: generators, limiter: limiter}
}

// GenerateContent implements ContentGenerator.
func (c *Caller) GenerateContent(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	log := logger.WithModule("Gemini")

	if len(c.generators) == 0 {
		return nil, fmt.Errorf("no Gemini clients configured")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	var lastErr error
	for keyIndex, gen := range c.generators {
		result, err := gen.GenerateContent(ctx, model, contents, config)
		if err == nil {
			if keyIndex > 0 {
				log.Infof("✅ [Gemini] Request served by fallback key #%d", keyIndex+1)
			}
			return result, nil
		}
		lastErr = err

		if !isQuotaError(err) {
			return nil, err
		}
		log.Warnf("⚠️  [Gemini] Key #%d/%d hit rate limit: %v", keyIndex+1, len(c.generators), err)
	}

	return nil, fmt.Errorf("all %d API keys exhausted, last error: %w", len(c.generators), lastErr)
}

// isQuotaError - 429 / quota exhaustion on the current key
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource_exhausted")
}
