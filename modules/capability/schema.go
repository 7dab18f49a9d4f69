package capability

import "google.golang.org/genai"

// Required fields per response shape. The parser checks exactly these keys.
var (
	visualStyleFields = []string{"artStyle", "lighting", "colorPalette", "cameraAngle", "texture", "backgroundDetail", "characterDesign", "mood"}
	scriptStyleFields = []string{"narrativeTone", "sceneStructure", "emotionalPacing", "dialogueFormat", "transitions", "sceneLength", "voiceOverTone"}
	sceneFields       = []string{"sceneNumber", "script", "imagePrompt", "animationPrompt", "voiceOver"}
)

func stringSchema() *genai.Schema {
	return &genai.Schema{Type: genai.TypeString}
}

func objectOfStrings(fields []string) *genai.Schema {
	props := make(map[string]*genai.Schema, len(fields))
	for _, f := range fields {
		props[f] = stringSchema()
	}
	return &genai.Schema{
		Type:             genai.TypeObject,
		Properties:       props,
		Required:         append([]string(nil), fields...),
		PropertyOrdering: append([]string(nil), fields...),
	}
}

func visualStyleSchema() *genai.Schema {
	schema := objectOfStrings(visualStyleFields)
	schema.Properties["colorPalette"] = &genai.Schema{
		Type:  genai.TypeArray,
		Items: stringSchema(),
	}
	return schema
}

func scriptStyleSchema() *genai.Schema {
	return objectOfStrings(scriptStyleFields)
}

func scenesSchema() *genai.Schema {
	scene := objectOfStrings(sceneFields)
	scene.Properties["sceneNumber"] = &genai.Schema{Type: genai.TypeInteger}
	return &genai.Schema{
		Type:  genai.TypeArray,
		Items: scene,
	}
}
