package capability

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cinegen-server/modules/common/model"
)

// ErrMalformedResponse - the collaborator answered with something that is not the declared shape
var ErrMalformedResponse = errors.New("malformed response")

// MissingFieldError - a required key is absent or null
type MissingFieldError struct {
	Field string
	Index int // scene index for array responses, -1 otherwise
}

func (e *MissingFieldError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("scene %d: missing required field %q", e.Index, e.Field)
	}
	return fmt.Sprintf("missing required field %q", e.Field)
}

// stripFences removes a ```json ... ``` wrapper some models add around JSON output.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}

func decodeObject(raw []byte) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: expected JSON object: %v", ErrMalformedResponse, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: expected JSON object, got null", ErrMalformedResponse)
	}
	return obj, nil
}

// requireString - field present, not null, and a JSON string
func requireString(obj map[string]json.RawMessage, field string, index int) (string, error) {
	raw, ok := obj[field]
	if !ok || isNull(raw) {
		return "", &MissingFieldError{Field: field, Index: index}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: field %q is not a string", ErrMalformedResponse, field)
	}
	return s, nil
}

func requireStringList(obj map[string]json.RawMessage, field string) ([]string, error) {
	raw, ok := obj[field]
	if !ok || isNull(raw) {
		return nil, &MissingFieldError{Field: field, Index: -1}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: field %q is not a list of strings", ErrMalformedResponse, field)
	}
	if list == nil {
		list = []string{}
	}
	return list, nil
}

func requireInt(obj map[string]json.RawMessage, field string, index int) (int, error) {
	raw, ok := obj[field]
	if !ok || isNull(raw) {
		return 0, &MissingFieldError{Field: field, Index: index}
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return 0, fmt.Errorf("%w: field %q is not a number", ErrMalformedResponse, field)
	}
	v, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: field %q is not an integer", ErrMalformedResponse, field)
	}
	return int(v), nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// ParseVisualStyle - validate the image analysis response field by field
func ParseVisualStyle(text string) (*model.VisualStyleTemplate, error) {
	obj, err := decodeObject([]byte(stripFences(text)))
	if err != nil {
		return nil, err
	}

	var t model.VisualStyleTemplate
	strs := map[string]*string{
		"artStyle":         &t.ArtStyle,
		"lighting":         &t.Lighting,
		"cameraAngle":      &t.CameraAngle,
		"texture":          &t.Texture,
		"backgroundDetail": &t.BackgroundDetail,
		"characterDesign":  &t.CharacterDesign,
		"mood":             &t.Mood,
	}
	for _, field := range visualStyleFields {
		if field == "colorPalette" {
			palette, err := requireStringList(obj, field)
			if err != nil {
				return nil, err
			}
			t.ColorPalette = palette
			continue
		}
		v, err := requireString(obj, field, -1)
		if err != nil {
			return nil, err
		}
		*strs[field] = v
	}
	return &t, nil
}

// ParseScriptStyle - validate the script analysis response field by field
func ParseScriptStyle(text string) (*model.ScriptStyleTemplate, error) {
	obj, err := decodeObject([]byte(stripFences(text)))
	if err != nil {
		return nil, err
	}

	var t model.ScriptStyleTemplate
	strs := map[string]*string{
		"narrativeTone":   &t.NarrativeTone,
		"sceneStructure":  &t.SceneStructure,
		"emotionalPacing": &t.EmotionalPacing,
		"dialogueFormat":  &t.DialogueFormat,
		"transitions":     &t.Transitions,
		"sceneLength":     &t.SceneLength,
		"voiceOverTone":   &t.VoiceOverTone,
	}
	for _, field := range scriptStyleFields {
		v, err := requireString(obj, field, -1)
		if err != nil {
			return nil, err
		}
		*strs[field] = v
	}
	return &t, nil
}

// ParseScenes - validate every scene of the generation response. The number
// of scenes is not checked here.
func ParseScenes(text string) ([]model.GeneratedScene, error) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(stripFences(text)), &items); err != nil {
		return nil, fmt.Errorf("%w: expected JSON array: %v", ErrMalformedResponse, err)
	}
	if items == nil {
		return nil, fmt.Errorf("%w: expected JSON array, got null", ErrMalformedResponse)
	}

	scenes := make([]model.GeneratedScene, 0, len(items))
	for i, item := range items {
		obj, err := decodeObject(item)
		if err != nil {
			return nil, fmt.Errorf("scene %d: %w", i, err)
		}

		var s model.GeneratedScene
		if s.SceneNumber, err = requireInt(obj, "sceneNumber", i); err != nil {
			return nil, err
		}
		strs := []struct {
			field string
			dst   *string
		}{
			{"script", &s.Script},
			{"imagePrompt", &s.ImagePrompt},
			{"animationPrompt", &s.AnimationPrompt},
			{"voiceOver", &s.VoiceOver},
		}
		for _, f := range strs {
			if *f.dst, err = requireString(obj, f.field, i); err != nil {
				return nil, err
			}
		}
		scenes = append(scenes, s)
	}
	return scenes, nil
}

// numberingAnomalies - scene numbers that are not 1..n in order. Reported, never corrected.
func numberingAnomalies(scenes []model.GeneratedScene) []int {
	var bad []int
	for i, s := range scenes {
		if s.SceneNumber != i+1 {
			bad = append(bad, i)
		}
	}
	return bad
}
