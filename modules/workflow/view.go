package workflow

import "cinegen-server/modules/common/model"

// View - what a presentation surface renders for the current state
type View struct {
	Step         model.AppStep              `json:"step"`
	StepName     string                     `json:"stepName"`
	StepLabel    string                     `json:"stepLabel"`
	VisualStyle  *model.VisualStyleTemplate `json:"visualStyle,omitempty"`
	ScriptStyle  *model.ScriptStyleTemplate `json:"scriptStyle,omitempty"`
	Settings     *model.ProjectSettings     `json:"settings,omitempty"`
	Scenes       []model.GeneratedScene     `json:"scenes"`
	Error        string                     `json:"error,omitempty"`
	IsProcessing bool                       `json:"isProcessing"`
}

// View derives the presentation view. Scenes is never null in JSON.
func (s State) View() View {
	c := s.Clone()
	scenes := c.Scenes
	if scenes == nil {
		scenes = []model.GeneratedScene{}
	}
	return View{
		Step:         c.Step,
		StepName:     c.Step.String(),
		StepLabel:    c.Step.Label(),
		VisualStyle:  c.VisualStyle,
		ScriptStyle:  c.ScriptStyle,
		Settings:     c.Settings,
		Scenes:       scenes,
		Error:        c.Error,
		IsProcessing: c.Processing(),
	}
}
