package workflow

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"cinegen-server/modules/capability"
	"cinegen-server/modules/common/logger"
	"cinegen-server/modules/common/model"
	"cinegen-server/modules/common/utils"
)

// Observer receives every committed state, in commit order. It is called with
// the controller lock held and must not call back into the controller.
type Observer func(State)

// Options - per-controller settings
type Options struct {
	MaxImageBytes int64
	Observer      Observer
}

// Controller - owns one session's State and drives the capability client.
// Capability calls run without the lock held.
type Controller struct {
	mu     sync.Mutex
	state  State
	client capability.Client
	opts   Options
	cancel context.CancelFunc
	closed bool
	log    *logrus.Entry
}

// NewController - fresh session
func NewController(client capability.Client, opts Options) *Controller {
	return RestoreController(client, opts, Initial())
}

// RestoreController - controller over a previously saved state
func RestoreController(client capability.Client, opts Options, st State) *Controller {
	return &Controller{
		state:  Recover(st),
		client: client,
		opts:   opts,
		log:    logger.WithModule("Workflow"),
	}
}

// State - snapshot of the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// commit must be called with c.mu held. A closed controller commits nothing.
func (c *Controller) commit(next State) {
	if c.closed {
		return
	}
	c.state = next
	if c.opts.Observer != nil {
		c.opts.Observer(next.Clone())
	}
}

// start - cancel any superseded call and derive the context for a new one.
// Must be called with c.mu held. The call outlives the caller's own
// cancellation; it ends on reset, supersede or Close.
func (c *Controller) start(ctx context.Context) context.Context {
	if c.cancel != nil {
		c.cancel()
	}
	callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	return callCtx
}

// finish releases the call context if it still belongs to the ticket.
// Must be called with c.mu held.
func (c *Controller) finish(t Ticket) {
	if c.state.current(t) && c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) stopInFlight() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// SubmitVisualStyle - store an already extracted visual style
func (c *Controller) SubmitVisualStyle(template model.VisualStyleTemplate) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.state.Clone(), ErrClosed
	}

	next, err := SubmitVisualStyle(c.state, template)
	if err != nil {
		return c.state.Clone(), err
	}
	c.stopInFlight()
	c.commit(next)
	return next.Clone(), nil
}

// SubmitScriptStyle - store an already extracted script style
func (c *Controller) SubmitScriptStyle(template model.ScriptStyleTemplate) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.state.Clone(), ErrClosed
	}

	next, err := SubmitScriptStyle(c.state, template)
	if err != nil {
		return c.state.Clone(), err
	}
	c.stopInFlight()
	c.commit(next)
	return next.Clone(), nil
}

// AnalyzeImage - validate the reference image, analyse it and advance to IntakeScript
func (c *Controller) AnalyzeImage(ctx context.Context, image []byte, mimeType string) (State, error) {
	c.mu.Lock()
	if c.closed {
		defer c.mu.Unlock()
		return c.state.Clone(), ErrClosed
	}
	if c.state.Step != model.StepIntakeImage {
		defer c.mu.Unlock()
		return c.state.Clone(), ErrInvalidStep
	}

	mimeType = utils.ResolveImageMIME(image, mimeType)
	if err := utils.ValidateReferenceImage(image, mimeType, c.opts.MaxImageBytes); err != nil {
		defer c.mu.Unlock()
		return c.reject(err), err
	}

	next, ticket, err := BeginAnalysis(c.state, model.StepIntakeImage)
	if err != nil {
		defer c.mu.Unlock()
		return c.state.Clone(), err
	}
	callCtx := c.start(ctx)
	c.commit(next)
	c.mu.Unlock()

	template, callErr := c.client.AnalyzeImage(callCtx, image, mimeType)
	if callErr == nil && template == nil {
		callErr = capability.ErrEmptyResponse
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if callErr != nil {
		c.log.Errorf("❌ [Workflow] Image analysis failed: %v", callErr)
		return c.fail(ticket, classifyAnalysis(callErr, model.AnalysisImage))
	}
	next, err = CompleteImageAnalysis(c.state, ticket, *template)
	if err != nil {
		c.log.Infof("⏭️  [Workflow] Discarding image analysis result (ticket %d)", ticket.ID)
		return c.state.Clone(), err
	}
	c.finish(ticket)
	c.commit(next)
	c.log.Infof("✅ [Workflow] Visual style stored, step -> %s", next.Step)
	return next.Clone(), nil
}

// AnalyzeScript - check the sample length, analyse it and advance to ConfigureProject
func (c *Controller) AnalyzeScript(ctx context.Context, script string) (State, error) {
	c.mu.Lock()
	if c.closed {
		defer c.mu.Unlock()
		return c.state.Clone(), ErrClosed
	}
	if c.state.Step != model.StepIntakeScript {
		defer c.mu.Unlock()
		return c.state.Clone(), ErrInvalidStep
	}
	if err := model.ValidateScriptSample(script); err != nil {
		defer c.mu.Unlock()
		return c.reject(err), err
	}

	next, ticket, err := BeginAnalysis(c.state, model.StepIntakeScript)
	if err != nil {
		defer c.mu.Unlock()
		return c.state.Clone(), err
	}
	callCtx := c.start(ctx)
	c.commit(next)
	c.mu.Unlock()

	template, callErr := c.client.AnalyzeScript(callCtx, script)
	if callErr == nil && template == nil {
		callErr = capability.ErrEmptyResponse
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if callErr != nil {
		c.log.Errorf("❌ [Workflow] Script analysis failed: %v", callErr)
		return c.fail(ticket, classifyAnalysis(callErr, model.AnalysisScript))
	}
	next, err = CompleteScriptAnalysis(c.state, ticket, *template)
	if err != nil {
		c.log.Infof("⏭️  [Workflow] Discarding script analysis result (ticket %d)", ticket.ID)
		return c.state.Clone(), err
	}
	c.finish(ticket)
	c.commit(next)
	c.log.Infof("✅ [Workflow] Script style stored, step -> %s", next.Step)
	return next.Clone(), nil
}

// Generate - run project generation with the stored templates. A second call
// while one is outstanding returns ErrBusy without reaching the client.
func (c *Controller) Generate(ctx context.Context, settings model.ProjectSettings) (State, error) {
	c.mu.Lock()
	if c.closed {
		defer c.mu.Unlock()
		return c.state.Clone(), ErrClosed
	}
	next, ticket, err := BeginGeneration(c.state, settings)
	if err != nil {
		defer c.mu.Unlock()
		if model.IsValidation(err) {
			return c.reject(err), err
		}
		return c.state.Clone(), err
	}
	visual := next.VisualStyle.Clone()
	script := *next.ScriptStyle
	callCtx := c.start(ctx)
	c.commit(next)
	c.mu.Unlock()

	scenes, callErr := c.client.GenerateProject(callCtx, visual, script, settings)

	c.mu.Lock()
	defer c.mu.Unlock()

	if callErr != nil {
		c.log.Errorf("❌ [Workflow] Project generation failed: %v", callErr)
		return c.fail(ticket, classifyGeneration(callErr))
	}
	if len(scenes) == 0 {
		c.log.Warnf("⚠️  [Workflow] Generation returned no scenes for %q", settings.Title)
	}
	next, err = CompleteGeneration(c.state, ticket, scenes)
	if err != nil {
		c.log.Infof("⏭️  [Workflow] Discarding generation result (ticket %d)", ticket.ID)
		return c.state.Clone(), err
	}
	c.finish(ticket)
	c.commit(next)
	c.log.Infof("✅ [Workflow] Project %q generated with %d scene(s)", settings.Title, len(next.Scenes))
	return next.Clone(), nil
}

// Reset - valid from any step; an outstanding call is cancelled and its result discarded
func (c *Controller) Reset() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopInFlight()
	c.commit(Reset(c.state))
	return c.state.Clone()
}

// Close cancels any outstanding call and detaches the controller. The ticket
// of that call is dropped, so its completion is discarded as stale, and no
// later transition reaches the observer.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopInFlight()
	c.state.InFlight = nil
	c.closed = true
}

// RejectInput - record a validation failure for input submitted at step.
func (c *Controller) RejectInput(step model.AppStep, err error) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.state.Clone(), ErrClosed
	}
	if c.state.Step != step {
		return c.state.Clone(), ErrInvalidStep
	}
	return c.reject(err), err
}

// reject stores a validation message. Must be called with c.mu held.
func (c *Controller) reject(err error) State {
	var ve *model.ValidationError
	msg := err.Error()
	if errors.As(err, &ve) {
		msg = ve.Message
	}
	next := Reject(c.state, msg)
	c.commit(next)
	return next.Clone()
}

// fail stores the generic message for a failed call. Must be called with c.mu held.
func (c *Controller) fail(t Ticket, callErr userFacing) (State, error) {
	next, err := Fail(c.state, t, callErr.UserMessage())
	if err != nil {
		return c.state.Clone(), err
	}
	c.finish(t)
	c.commit(next)
	return next.Clone(), callErr
}

type userFacing interface {
	error
	UserMessage() string
}

// classifyAnalysis - every analysis failure surfaces as an AnalysisError
func classifyAnalysis(err error, target model.AnalysisTarget) userFacing {
	var ae *model.AnalysisError
	if errors.As(err, &ae) {
		return ae
	}
	return &model.AnalysisError{Target: target, Err: err}
}

// classifyGeneration - every generation failure surfaces as a GenerationError
func classifyGeneration(err error) userFacing {
	var ge *model.GenerationError
	if errors.As(err, &ge) {
		return ge
	}
	return &model.GenerationError{Err: err}
}
