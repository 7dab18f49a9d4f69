package capability

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/genai"

	"cinegen-server/modules/common/model"
)

type fakeGenerator struct {
	mu       sync.Mutex
	reply    string
	err      error
	calls    int
	lastCfg  *genai.GenerateContentConfig
	lastBody []*genai.Content
	hasDL    bool
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, _ string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastCfg = cfg
	f.lastBody = contents
	_, f.hasDL = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: f.reply}}}},
		},
	}, nil
}

func sceneJSON(n int) string {
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, `{"sceneNumber":`+string(rune('0'+i))+`,"script":"s","imagePrompt":"i","animationPrompt":"a","voiceOver":"v"}`)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

var (
	testVisual   = model.VisualStyleTemplate{ArtStyle: "Cyberpunk Noir", ColorPalette: []string{"magenta"}, Mood: "Melancholic"}
	testScript   = model.ScriptStyleTemplate{NarrativeTone: "Wry"}
	testSettings = model.ProjectSettings{Title: "Neon Requiem", SceneCount: 3}
)

func TestGeminiClient_AnalyzeImage(t *testing.T) {
	t.Run("success sends inline image with schema", func(t *testing.T) {
		gen := &fakeGenerator{reply: neonRequiem}
		client := NewGeminiClient(gen, "test-model", time.Minute, false)

		got, err := client.AnalyzeImage(context.Background(), []byte{1, 2, 3}, "image/png")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ArtStyle != "Cyberpunk Noir" {
			t.Errorf("artStyle = %q", got.ArtStyle)
		}
		if gen.lastCfg == nil || gen.lastCfg.ResponseMIMEType != "application/json" || gen.lastCfg.ResponseSchema == nil {
			t.Errorf("expected JSON response config, got %+v", gen.lastCfg)
		}
		blob := gen.lastBody[0].Parts[0].InlineData
		if blob == nil || blob.MIMEType != "image/png" || len(blob.Data) != 3 {
			t.Errorf("expected inline image part, got %+v", gen.lastBody[0].Parts[0])
		}
		if !gen.hasDL {
			t.Error("expected request deadline to be set")
		}
	})

	t.Run("incomplete object is an analysis error", func(t *testing.T) {
		gen := &fakeGenerator{reply: `{"artStyle":"x"}`}
		client := NewGeminiClient(gen, "test-model", 0, false)

		_, err := client.AnalyzeImage(context.Background(), []byte{1}, "image/png")
		var ae *model.AnalysisError
		if !errors.As(err, &ae) || ae.Target != model.AnalysisImage {
			t.Fatalf("expected image AnalysisError, got %v", err)
		}
	})

	t.Run("transport failure is an analysis error", func(t *testing.T) {
		gen := &fakeGenerator{err: errors.New("connection reset")}
		client := NewGeminiClient(gen, "test-model", 0, false)

		_, err := client.AnalyzeImage(context.Background(), []byte{1}, "image/png")
		var ae *model.AnalysisError
		if !errors.As(err, &ae) {
			t.Fatalf("expected AnalysisError, got %v", err)
		}
		if gen.calls != 1 {
			t.Errorf("expected exactly one request, got %d", gen.calls)
		}
	})

	t.Run("empty candidate list", func(t *testing.T) {
		gen := &fakeGenerator{reply: "   "}
		client := NewGeminiClient(gen, "test-model", 0, false)

		_, err := client.AnalyzeImage(context.Background(), []byte{1}, "image/png")
		if !errors.Is(err, ErrEmptyResponse) {
			t.Fatalf("expected ErrEmptyResponse, got %v", err)
		}
	})
}

func TestGeminiClient_AnalyzeScript(t *testing.T) {
	gen := &fakeGenerator{reply: `{"narrativeTone":"Wry","sceneStructure":"a","emotionalPacing":"b","dialogueFormat":"c","transitions":"d","sceneLength":"e","voiceOverTone":"f"}`}
	client := NewGeminiClient(gen, "test-model", 0, false)

	script := strings.Repeat("The rain never stops in this city. ", 3)
	got, err := client.AnalyzeScript(context.Background(), script)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.NarrativeTone != "Wry" {
		t.Errorf("narrativeTone = %q", got.NarrativeTone)
	}
	if prompt := gen.lastBody[0].Parts[0].Text; !strings.Contains(prompt, script) {
		t.Error("expected prompt to embed the script sample")
	}

	gen.reply = `{"narrativeTone":"Wry"}`
	_, err = client.AnalyzeScript(context.Background(), script)
	var ae *model.AnalysisError
	if !errors.As(err, &ae) || ae.Target != model.AnalysisScript {
		t.Fatalf("expected script AnalysisError, got %v", err)
	}
}

func TestGeminiClient_GenerateProject(t *testing.T) {
	t.Run("requested count", func(t *testing.T) {
		gen := &fakeGenerator{reply: sceneJSON(3)}
		client := NewGeminiClient(gen, "test-model", 0, false)

		scenes, err := client.GenerateProject(context.Background(), testVisual, testScript, testSettings)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(scenes) != 3 {
			t.Fatalf("expected 3 scenes, got %d", len(scenes))
		}
		for i, s := range scenes {
			if s.SceneNumber != i+1 {
				t.Errorf("scene %d has number %d", i, s.SceneNumber)
			}
		}

		sys := gen.lastCfg.SystemInstruction.Parts[0].Text
		if !strings.Contains(sys, "exactly 3 scenes") || !strings.Contains(sys, "Neon Requiem") {
			t.Errorf("system instruction missing title or count: %s", sys)
		}
		if prompt := gen.lastBody[0].Parts[0].Text; !strings.Contains(prompt, defaultCharacters) {
			t.Error("expected default characters directive when none given")
		}
	})

	t.Run("count mismatch accepted by default", func(t *testing.T) {
		gen := &fakeGenerator{reply: sceneJSON(2)}
		client := NewGeminiClient(gen, "test-model", 0, false)

		scenes, err := client.GenerateProject(context.Background(), testVisual, testScript, testSettings)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(scenes) != 2 {
			t.Errorf("expected the 2 returned scenes, got %d", len(scenes))
		}
	})

	t.Run("count mismatch rejected in strict mode", func(t *testing.T) {
		gen := &fakeGenerator{reply: sceneJSON(2)}
		client := NewGeminiClient(gen, "test-model", 0, true)

		_, err := client.GenerateProject(context.Background(), testVisual, testScript, testSettings)
		var ge *model.GenerationError
		if !errors.As(err, &ge) || !errors.Is(err, ErrSceneCountMismatch) {
			t.Fatalf("expected GenerationError with count mismatch, got %v", err)
		}
	})

	t.Run("characters passed through", func(t *testing.T) {
		gen := &fakeGenerator{reply: sceneJSON(1)}
		client := NewGeminiClient(gen, "test-model", 0, false)

		settings := model.ProjectSettings{Title: "Solo", SceneCount: 1, Characters: "Detective Mara"}
		if _, err := client.GenerateProject(context.Background(), testVisual, testScript, settings); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if prompt := gen.lastBody[0].Parts[0].Text; !strings.Contains(prompt, "Detective Mara") {
			t.Error("expected characters in prompt")
		}
	})

	t.Run("failure is a generation error", func(t *testing.T) {
		gen := &fakeGenerator{err: errors.New("503 unavailable")}
		client := NewGeminiClient(gen, "test-model", 0, false)

		_, err := client.GenerateProject(context.Background(), testVisual, testScript, testSettings)
		var ge *model.GenerationError
		if !errors.As(err, &ge) {
			t.Fatalf("expected GenerationError, got %v", err)
		}
	})
}
