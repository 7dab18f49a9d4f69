package capability

import (
	"encoding/json"
	"fmt"
	"strings"

	"cinegen-server/modules/common/model"
)

const defaultCharacters = "Create appropriate characters"

const visualAnalysisPrompt = `Analyze this reference image. Extract the art style, lighting, color palette, camera angle and framing, textures, background detail, character design, and mood.
Your goal is to create a visual style template for future image generation.
Fill every field: artStyle, lighting, colorPalette (a list of color names), cameraAngle, texture, backgroundDetail, characterDesign, mood.
Return JSON only.`

// buildScriptAnalysisPrompt - instruction plus the user's script sample
func buildScriptAnalysisPrompt(script string) string {
	return fmt.Sprintf(`Analyze the following reference script. Extract the storytelling style, pacing, tone, structure, transitions, and dialogue style.
Your goal is to create a script style template for future writing generation.
Fill every field: narrativeTone, sceneStructure, emotionalPacing, dialogueFormat, transitions, sceneLength, voiceOverTone.

SCRIPT:
%s

Return JSON only.`, script)
}

// buildGenerationSystemInstruction - rules the model follows for the whole project
func buildGenerationSystemInstruction(settings model.ProjectSettings) string {
	return fmt.Sprintf(`You are a Multi-Stage Cinematic AI.
You have been provided with a VISUAL STYLE TEMPLATE and a SCRIPT STYLE TEMPLATE.
You must generate a project consisting of exactly %d scenes about %q.

Adhere strictly to these rules:
1. Script: Match the tone, pacing, and formatting of the script template.
2. Image Prompts: Match the art style, lighting, colors, and mood of the visual template.
3. Animation Prompts: Describe camera movement and motion matching the visual style.
4. Voice Over: Match the narrator's voice and flow from the script template.
5. Number the scenes sequentially starting at 1.`, settings.SceneCount, settings.Title)
}

// buildGenerationPrompt - both templates and the settings serialized as structured context
func buildGenerationPrompt(visual model.VisualStyleTemplate, script model.ScriptStyleTemplate, settings model.ProjectSettings) (string, error) {
	visualJSON, err := json.Marshal(visual)
	if err != nil {
		return "", fmt.Errorf("failed to encode visual style: %w", err)
	}
	scriptJSON, err := json.Marshal(script)
	if err != nil {
		return "", fmt.Errorf("failed to encode script style: %w", err)
	}

	characters := strings.TrimSpace(settings.Characters)
	if characters == "" {
		characters = defaultCharacters
	}

	var b strings.Builder
	b.WriteString("VISUAL STYLE TEMPLATE:\n")
	b.Write(visualJSON)
	b.WriteString("\n\nSCRIPT STYLE TEMPLATE:\n")
	b.Write(scriptJSON)
	b.WriteString("\n\nPROJECT DETAILS:\n")
	fmt.Fprintf(&b, "Title: %s\n", settings.Title)
	fmt.Fprintf(&b, "Scenes: %d\n", settings.SceneCount)
	fmt.Fprintf(&b, "Characters: %s\n", characters)
	b.WriteString("\nGenerate the output as a JSON array of scenes, each with sceneNumber, script, imagePrompt, animationPrompt and voiceOver.")
	return b.String(), nil
}
