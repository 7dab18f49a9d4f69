package model

import (
	"errors"
	"fmt"
)

// Generic messages stored for the user. Collaborator detail only goes to the log.
const (
	MsgImageAnalysisFailed  = "Failed to analyze image. Please ensure your API key is valid and try again."
	MsgScriptAnalysisFailed = "Failed to analyze script. Please try again."
	MsgGenerationFailed     = "Failed to generate project. Please check your API key and try again."
)

// ValidationError - local precondition failure, raised before any external call
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// AnalysisTarget - which analysis call failed
type AnalysisTarget string

const (
	AnalysisImage  AnalysisTarget = "image"
	AnalysisScript AnalysisTarget = "script"
)

// AnalysisError - image or script analysis failed (transport, timeout, malformed or incomplete JSON)
type AnalysisError struct {
	Target AnalysisTarget
	Err    error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("%s analysis failed: %v", e.Target, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// UserMessage is the generic text stored for the current step.
func (e *AnalysisError) UserMessage() string {
	if e.Target == AnalysisScript {
		return MsgScriptAnalysisFailed
	}
	return MsgImageAnalysisFailed
}

// GenerationError - project generation failed
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("project generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func (e *GenerationError) UserMessage() string {
	return MsgGenerationFailed
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
