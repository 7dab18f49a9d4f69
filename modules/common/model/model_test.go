package model

import (
	"errors"
	"strings"
	"testing"
)

func TestProjectSettings_Validate(t *testing.T) {
	cases := []struct {
		name     string
		settings ProjectSettings
		field    string
	}{
		{"valid", ProjectSettings{Title: "Neon Requiem", SceneCount: 2}, ""},
		{"valid upper bound", ProjectSettings{Title: "x", SceneCount: 10}, ""},
		{"empty title", ProjectSettings{Title: "", SceneCount: 3}, "title"},
		{"blank title", ProjectSettings{Title: "   ", SceneCount: 3}, "title"},
		{"zero scenes", ProjectSettings{Title: "x", SceneCount: 0}, "sceneCount"},
		{"too many scenes", ProjectSettings{Title: "x", SceneCount: 11}, "sceneCount"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.settings.Validate()
			if tc.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var v *ValidationError
			if !errors.As(err, &v) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if v.Field != tc.field {
				t.Errorf("field = %s, want %s", v.Field, tc.field)
			}
		})
	}
}

func TestValidateScriptSample(t *testing.T) {
	if err := ValidateScriptSample(strings.Repeat("a", 49)); !IsValidation(err) {
		t.Errorf("49 characters should be rejected, got %v", err)
	}
	if err := ValidateScriptSample(strings.Repeat("a", 50)); err != nil {
		t.Errorf("50 characters should pass, got %v", err)
	}
	// multi-byte characters count once each
	if err := ValidateScriptSample(strings.Repeat("é", 50)); err != nil {
		t.Errorf("50 runes should pass, got %v", err)
	}
}

func TestAppStep_Label(t *testing.T) {
	if StepConfigureProject.Label() != "Project Setup" {
		t.Errorf("label = %s", StepConfigureProject.Label())
	}
	if AppStep(9).Valid() {
		t.Error("step 9 should not be valid")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &AnalysisError{Target: AnalysisScript, Err: cause}
	if !errors.Is(err, cause) {
		t.Error("AnalysisError should unwrap to its cause")
	}
	if err.UserMessage() != MsgScriptAnalysisFailed {
		t.Errorf("message = %s", err.UserMessage())
	}
	gen := &GenerationError{Err: cause}
	if !errors.Is(gen, cause) {
		t.Error("GenerationError should unwrap to its cause")
	}
}
