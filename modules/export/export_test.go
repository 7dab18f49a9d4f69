package export

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cinegen-server/modules/common/database"
	"cinegen-server/modules/common/model"
	"cinegen-server/modules/workflow"
)

type memoryRepo struct {
	rows map[string]database.ProjectExport
	err  error
}

func (r *memoryRepo) InsertProjectExport(_ context.Context, rec database.ProjectExport) (*database.ProjectExport, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.rows == nil {
		r.rows = map[string]database.ProjectExport{}
	}
	r.rows[rec.ExportID] = rec
	return &rec, nil
}

func (r *memoryRepo) FetchProjectExport(_ context.Context, id string) (*database.ProjectExport, error) {
	rec, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func finishedState(t *testing.T) workflow.State {
	t.Helper()
	st, err := workflow.SubmitVisualStyle(workflow.Initial(), model.VisualStyleTemplate{
		ArtStyle:     "Cyberpunk Noir",
		ColorPalette: []string{"magenta", "teal"},
		Mood:         "Melancholic",
	})
	if err != nil {
		t.Fatal(err)
	}
	st, err = workflow.SubmitScriptStyle(st, model.ScriptStyleTemplate{NarrativeTone: "Wry | dry"})
	if err != nil {
		t.Fatal(err)
	}
	st, ticket, err := workflow.BeginGeneration(st, model.ProjectSettings{Title: "Neon Requiem", SceneCount: 2})
	if err != nil {
		t.Fatal(err)
	}
	st, err = workflow.CompleteGeneration(st, ticket, []model.GeneratedScene{
		{SceneNumber: 1, Script: "INT. ALLEY - NIGHT", ImagePrompt: "rain, neon", AnimationPrompt: "slow dolly", VoiceOver: "It never stops."},
		{SceneNumber: 2, Script: "EXT. ROOFTOP", ImagePrompt: "skyline", AnimationPrompt: "crane up", VoiceOver: "Not tonight."},
	})
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestRenderMarkdown(t *testing.T) {
	md := RenderMarkdown(finishedState(t).View())

	for _, want := range []string{
		"# Neon Requiem",
		"Step 4 of 4: Results",
		"| Color palette | magenta, teal |",
		"| Narrative tone | Wry \\| dry |",
		"### Scene 1",
		"### Scene 2",
		"> It never stops.",
		"slow dolly",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}

	empty := RenderMarkdown(workflow.Initial().View())
	if !strings.Contains(empty, "Untitled Project") || strings.Contains(empty, "## Scenes") {
		t.Errorf("unexpected markdown for a fresh session:\n%s", empty)
	}
}

func TestRenderHTML(t *testing.T) {
	st := finishedState(t)
	st.Scenes[0].Script = "<script>alert(1)</script>"

	html, err := RenderHTML(st.View())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, "<h1>Neon Requiem</h1>") {
		t.Errorf("expected title heading, got:\n%s", html)
	}
	if !strings.Contains(html, "<table>") {
		t.Error("expected style tables")
	}
	if strings.Contains(html, "<script>") {
		t.Error("raw HTML from model output must not pass through")
	}
}

func TestService_Export(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		if _, err := NewService(nil).Export(ctx, "s", finishedState(t)); !errors.Is(err, ErrDisabled) {
			t.Errorf("expected ErrDisabled, got %v", err)
		}
	})

	t.Run("not at results", func(t *testing.T) {
		svc := NewService(&memoryRepo{})
		if _, err := svc.Export(ctx, "s", workflow.Initial()); !errors.Is(err, ErrNotReady) {
			t.Errorf("expected ErrNotReady, got %v", err)
		}
	})

	t.Run("stores and fetches", func(t *testing.T) {
		repo := &memoryRepo{}
		svc := NewService(repo)

		rec, err := svc.Export(ctx, "session-1", finishedState(t))
		if err != nil {
			t.Fatalf("Export: %v", err)
		}
		if rec.ExportID == "" || rec.SessionID != "session-1" || rec.Title != "Neon Requiem" || len(rec.Scenes) != 2 {
			t.Errorf("unexpected record: %+v", rec)
		}
		if !strings.Contains(rec.Markdown, "### Scene 2") {
			t.Error("record markdown missing scenes")
		}

		got, err := svc.Get(ctx, rec.ExportID)
		if err != nil || got.Title != "Neon Requiem" {
			t.Errorf("Get: %+v, %v", got, err)
		}
		if _, err := svc.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("repository failure", func(t *testing.T) {
		svc := NewService(&memoryRepo{err: errors.New("postgrest down")})
		if _, err := svc.Export(ctx, "s", finishedState(t)); err == nil {
			t.Error("expected error")
		}
	})
}
