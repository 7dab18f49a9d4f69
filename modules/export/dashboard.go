package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"cinegen-server/modules/common/model"
	"cinegen-server/modules/workflow"
)

var markdownRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderMarkdown - results dashboard: style summaries followed by one card per scene
func RenderMarkdown(v workflow.View) string {
	var b strings.Builder

	title := "Untitled Project"
	if v.Settings != nil && strings.TrimSpace(v.Settings.Title) != "" {
		title = v.Settings.Title
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "_Step %d of 4: %s_\n\n", v.Step, v.StepLabel)

	if v.Error != "" {
		fmt.Fprintf(&b, "> **Error:** %s\n\n", v.Error)
	}

	if vs := v.VisualStyle; vs != nil {
		b.WriteString("## Visual Style\n\n")
		b.WriteString("| | |\n|---|---|\n")
		row(&b, "Art style", vs.ArtStyle)
		row(&b, "Lighting", vs.Lighting)
		row(&b, "Color palette", strings.Join(vs.ColorPalette, ", "))
		row(&b, "Camera", vs.CameraAngle)
		row(&b, "Texture", vs.Texture)
		row(&b, "Background", vs.BackgroundDetail)
		row(&b, "Characters", vs.CharacterDesign)
		row(&b, "Mood", vs.Mood)
		b.WriteString("\n")
	}

	if ss := v.ScriptStyle; ss != nil {
		b.WriteString("## Script Style\n\n")
		b.WriteString("| | |\n|---|---|\n")
		row(&b, "Narrative tone", ss.NarrativeTone)
		row(&b, "Structure", ss.SceneStructure)
		row(&b, "Pacing", ss.EmotionalPacing)
		row(&b, "Dialogue", ss.DialogueFormat)
		row(&b, "Transitions", ss.Transitions)
		row(&b, "Scene length", ss.SceneLength)
		row(&b, "Voice over", ss.VoiceOverTone)
		b.WriteString("\n")
	}

	if len(v.Scenes) == 0 {
		if v.Step == model.StepShowResults {
			b.WriteString("_No scenes were generated._\n")
		}
		return b.String()
	}

	fmt.Fprintf(&b, "## Scenes (%d)\n\n", len(v.Scenes))
	for _, s := range v.Scenes {
		fmt.Fprintf(&b, "### Scene %d\n\n", s.SceneNumber)
		fmt.Fprintf(&b, "**Script**\n\n%s\n\n", s.Script)
		fmt.Fprintf(&b, "**Voice Over**\n\n> %s\n\n", strings.ReplaceAll(s.VoiceOver, "\n", "\n> "))
		fmt.Fprintf(&b, "**Image Prompt**\n\n```\n%s\n```\n\n", s.ImagePrompt)
		fmt.Fprintf(&b, "**Animation Prompt**\n\n```\n%s\n```\n\n", s.AnimationPrompt)
	}
	return b.String()
}

func row(b *strings.Builder, label, value string) {
	value = strings.ReplaceAll(strings.ReplaceAll(value, "|", "\\|"), "\n", " ")
	fmt.Fprintf(b, "| %s | %s |\n", label, value)
}

// RenderHTML - the markdown dashboard as an HTML fragment. Raw HTML in model output is not passed through.
func RenderHTML(v workflow.View) (string, error) {
	var buf bytes.Buffer
	if err := markdownRenderer.Convert([]byte(RenderMarkdown(v)), &buf); err != nil {
		return "", fmt.Errorf("failed to render dashboard: %w", err)
	}
	return buf.String(), nil
}
