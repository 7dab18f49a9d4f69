package model

import (
	"strings"
	"unicode/utf8"
)

// AppStep - wizard step, numbered the way the step indicator shows it
type AppStep int

const (
	StepIntakeImage      AppStep = 1
	StepIntakeScript     AppStep = 2
	StepConfigureProject AppStep = 3
	StepShowResults      AppStep = 4
)

// Project settings limits
const (
	MinSceneCount     = 1
	MaxSceneCount     = 10
	DefaultSceneCount = 3
	MinScriptLength   = 50 // reference script sample, counted in characters
)

var stepLabels = map[AppStep]string{
	StepIntakeImage:      "Visual Style",
	StepIntakeScript:     "Script Style",
	StepConfigureProject: "Project Setup",
	StepShowResults:      "Results",
}

// Label - step name shown to the user
func (s AppStep) Label() string {
	if label, ok := stepLabels[s]; ok {
		return label
	}
	return "Unknown"
}

func (s AppStep) String() string {
	switch s {
	case StepIntakeImage:
		return "intake_image"
	case StepIntakeScript:
		return "intake_script"
	case StepConfigureProject:
		return "configure_project"
	case StepShowResults:
		return "show_results"
	}
	return "unknown"
}

// Valid - true for the four known steps
func (s AppStep) Valid() bool {
	return s >= StepIntakeImage && s <= StepShowResults
}

// VisualStyleTemplate - visual style extracted from the reference image
type VisualStyleTemplate struct {
	ArtStyle         string   `json:"artStyle"`
	Lighting         string   `json:"lighting"`
	ColorPalette     []string `json:"colorPalette"`
	CameraAngle      string   `json:"cameraAngle"`
	Texture          string   `json:"texture"`
	BackgroundDetail string   `json:"backgroundDetail"`
	CharacterDesign  string   `json:"characterDesign"`
	Mood             string   `json:"mood"`
}

// Clone returns a copy that does not share the palette slice.
func (v VisualStyleTemplate) Clone() VisualStyleTemplate {
	out := v
	if v.ColorPalette != nil {
		out.ColorPalette = append([]string(nil), v.ColorPalette...)
	}
	return out
}

// ScriptStyleTemplate - narrative style extracted from the reference script
type ScriptStyleTemplate struct {
	NarrativeTone   string `json:"narrativeTone"`
	SceneStructure  string `json:"sceneStructure"`
	EmotionalPacing string `json:"emotionalPacing"`
	DialogueFormat  string `json:"dialogueFormat"`
	Transitions     string `json:"transitions"`
	SceneLength     string `json:"sceneLength"`
	VoiceOverTone   string `json:"voiceOverTone"`
}

// ProjectSettings - user supplied generation parameters
type ProjectSettings struct {
	Title      string `json:"title"`
	SceneCount int    `json:"sceneCount"`
	Characters string `json:"characters,omitempty"`
}

// Validate checks the settings form constraints before any external call.
func (p ProjectSettings) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return NewValidationError("title", "Project title is required.")
	}
	if p.SceneCount < MinSceneCount || p.SceneCount > MaxSceneCount {
		return NewValidationError("sceneCount", "Scene count must be between 1 and 10.")
	}
	return nil
}

// GeneratedScene - one generated unit of the project
type GeneratedScene struct {
	SceneNumber     int    `json:"sceneNumber"`
	Script          string `json:"script"`
	ImagePrompt     string `json:"imagePrompt"`
	AnimationPrompt string `json:"animationPrompt"`
	VoiceOver       string `json:"voiceOver"`
}

// ValidateScriptSample - the script intake refuses samples shorter than MinScriptLength
func ValidateScriptSample(text string) error {
	if utf8.RuneCountInString(text) < MinScriptLength {
		return NewValidationError("script", "Please enter a longer script sample for better analysis.")
	}
	return nil
}
