package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/agent-forge/agent-forge/internal/domain/agent"
	"github.com/agent-forge/agent-forge/internal/domain/execution"
	"github.com/agent-forge/agent-forge/internal/domain/pipeline"
	"github.com/agent-forge/agent-forge/internal/infrastructure/eventbus"
	"github.com/agent-forge/agent-forge/internal/infrastructure/memstore"
	"github.com/agent-forge/agent-forge/internal/metrics"
)

// ErrNotInitialized is returned by Execute before a successful Initialize.
var ErrNotInitialized = errors.New("no pipeline initialized")

// ErrUnknownRun is returned by Cancel for ids without an active run.
var ErrUnknownRun = errors.New("no active run for execution id")

// ReasonStepTimeout is the failure reason recorded when a step exceeds
// its declared timeout.
const ReasonStepTimeout = "StepTimeout"

// StepExecutionError is a recoverable (optional step) or fatal (required
// step) failure of one collaborator invocation.
type StepExecutionError struct {
	Step   string
	Reason string
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %q failed: %s", e.Step, e.Reason)
}

// Archiver hands a terminal record to the external persistence boundary.
type Archiver interface {
	Archive(ctx context.Context, rec *execution.Record)
}

// Run is the handle for one asynchronous pipeline execution.
type Run struct {
	ExecutionID   uuid.UUID
	CorrelationID string
	cancel        context.CancelFunc
	done          chan struct{}
}

// Done is closed when the execution reaches a terminal status.
func (r *Run) Done() <-chan struct{} { return r.done }

// Engine executes a validated pipeline configuration against registered
// agent collaborators, mutating the shared execution store and emitting
// lifecycle events as it goes.
type Engine struct {
	registry *agent.Registry
	store    *memstore.Store
	bus      *eventbus.Bus
	metrics  *metrics.Metrics
	archiver Archiver
	logger   zerolog.Logger

	defaultStepTimeout time.Duration

	mu     sync.Mutex
	cfg    *pipeline.Config
	agents map[agentKey]agent.Agent
	runs   map[uuid.UUID]*Run
}

// agentKey identifies one instantiated collaborator. The same agent type
// may run under different config classes in one pipeline, so the type
// name alone is not unique.
type agentKey struct {
	typeName string
	class    agent.ConfigClass
}

// NewEngine creates an engine. metrics and archiver may be nil.
func NewEngine(registry *agent.Registry, store *memstore.Store, bus *eventbus.Bus, m *metrics.Metrics, archiver Archiver, defaultStepTimeout time.Duration, logger zerolog.Logger) *Engine {
	if defaultStepTimeout <= 0 {
		defaultStepTimeout = 5 * time.Minute
	}
	return &Engine{
		registry:           registry,
		store:              store,
		bus:                bus,
		metrics:            m,
		archiver:           archiver,
		defaultStepTimeout: defaultStepTimeout,
		runs:               make(map[uuid.UUID]*Run),
		logger:             logger.With().Str("service", "engine").Logger(),
	}
}

// Initialize validates the configuration against the registry and
// instantiates every referenced agent. Unknown agents and malformed
// iterative blocks fail here, never at execution time.
func (e *Engine) Initialize(cfg *pipeline.Config) error {
	if err := pipeline.Validate(cfg); err != nil {
		return err
	}

	instances := make(map[agentKey]agent.Agent)
	acquire := func(typeName string, class agent.ConfigClass) error {
		inst, key, err := e.instance(typeName, class)
		if err != nil {
			return err
		}
		instances[key] = inst
		return nil
	}
	for i := range cfg.Steps {
		step := &cfg.Steps[i]
		if step.ExecutionMode == pipeline.ModeIterative {
			ic := step.Iterative
			if err := acquire(ic.ImproverAgent, ""); err != nil {
				return err
			}
			if err := acquire(ic.EvaluatorAgent, ""); err != nil {
				return err
			}
			continue
		}
		if err := acquire(step.AgentType, step.ConfigType); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.cfg = cfg
	e.agents = instances
	e.mu.Unlock()

	e.logger.Info().
		Str("pipeline", cfg.Name).
		Int("steps", len(cfg.Steps)).
		Int("agents", len(instances)).
		Msg("pipeline initialized")
	return nil
}

// instance resolves an agent handle, defaulting the config class to the
// descriptor's declared class.
func (e *Engine) instance(typeName string, class agent.ConfigClass) (agent.Agent, agentKey, error) {
	desc, ok := e.registry.Get(typeName)
	if !ok {
		return nil, agentKey{}, &agent.UnknownAgentError{TypeName: typeName}
	}
	if class == "" {
		class = desc.ConfigClass
	}
	inst, err := e.registry.CreateInstance(typeName, class)
	return inst, agentKey{typeName: typeName, class: class}, err
}

// agentFor looks up an initialized instance with the same class
// defaulting Initialize applied.
func (e *Engine) agentFor(agents map[agentKey]agent.Agent, typeName string, class agent.ConfigClass) agent.Agent {
	if class == "" {
		if desc, ok := e.registry.Get(typeName); ok {
			class = desc.ConfigClass
		}
	}
	return agents[agentKey{typeName: typeName, class: class}]
}

// Config returns the currently initialized pipeline, or nil.
func (e *Engine) Config() *pipeline.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Clear drops the initialized pipeline and cached agent instances.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.cfg = nil
	e.agents = nil
	e.mu.Unlock()
	e.registry.ClearInstances()
	e.logger.Info().Msg("pipeline cleared")
}

// Execute creates a new execution record and begins asynchronous
// processing, returning the run handle immediately.
func (e *Engine) Execute(input json.RawMessage, correlationID string) (*Run, error) {
	e.mu.Lock()
	cfg := e.cfg
	agents := e.agents
	e.mu.Unlock()
	if cfg == nil {
		return nil, ErrNotInitialized
	}
	if correlationID == "" {
		correlationID = eventbus.NewCorrelationID()
	}

	optional := make(map[string]bool, len(cfg.Steps))
	for i := range cfg.Steps {
		optional[cfg.Steps[i].Name()] = cfg.Steps[i].Optional
	}
	rec := execution.NewRecord(cfg.Name, correlationID, input, cfg.StepNames(), optional)
	e.store.Save(rec)

	ctx := context.Background()
	var cancel context.CancelFunc
	if cfg.GlobalTimeoutSeconds > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.GlobalTimeoutSeconds)*time.Second)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	run := &Run{
		ExecutionID:   rec.ExecutionID,
		CorrelationID: correlationID,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	e.mu.Lock()
	e.runs[rec.ExecutionID] = run
	e.mu.Unlock()

	go e.run(ctx, run, cfg, agents, rec)
	return run, nil
}

// Cancel requests cancellation of an in-flight execution. Steps already
// running are allowed to finish but their results are discarded.
func (e *Engine) Cancel(id uuid.UUID) error {
	e.mu.Lock()
	run, ok := e.runs[id]
	e.mu.Unlock()
	if !ok {
		return ErrUnknownRun
	}
	run.cancel()
	return nil
}

// stepOutcome is what a collaborator invocation produced, applied to the
// record by the single run goroutine.
type stepOutcome struct {
	name   string
	result json.RawMessage
	err    error
}

func (e *Engine) run(ctx context.Context, run *Run, cfg *pipeline.Config, agents map[agentKey]agent.Agent, rec *execution.Record) {
	defer run.cancel()
	defer close(run.done)
	defer func() {
		e.mu.Lock()
		delete(e.runs, rec.ExecutionID)
		e.mu.Unlock()
	}()

	logger := e.logger.With().
		Str("execution_id", rec.ExecutionID.String()).
		Str("pipeline", cfg.Name).
		Logger()

	e.publish(eventbus.TypePipelineStarted, rec.CorrelationID, map[string]any{
		"execution_id":  rec.ExecutionID.String(),
		"pipeline_name": cfg.Name,
	})

	current := rec.Input
	requiredFailure := ""
	aborted := false
	cancelled := false

	for !aborted && !cancelled {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		group := e.nextGroup(cfg, rec)
		if len(group) == 0 {
			break
		}

		groupAbort, groupFail := e.runGroup(ctx, cfg, agents, rec, group, current, logger)
		if groupFail != "" && requiredFailure == "" {
			requiredFailure = groupFail
		}
		aborted = groupAbort
		if ctx.Err() != nil {
			cancelled = true
		}

		// The last produced result of the group, in config order, seeds
		// the next group.
		for _, step := range group {
			if res, ok := rec.Results[step.Name()]; ok {
				current = res
			}
		}
		e.store.Save(rec)
	}

	e.finish(rec, requiredFailure, cancelled, ctx.Err(), logger)
}

// nextGroup returns the maximal set of pending steps whose prerequisites
// are all satisfied, in declaration order. Recomputed after every group.
func (e *Engine) nextGroup(cfg *pipeline.Config, rec *execution.Record) []*pipeline.Step {
	var group []*pipeline.Step
	for i := range cfg.Steps {
		step := &cfg.Steps[i]
		progress := rec.Step(step.Name())
		if progress == nil || progress.Status != execution.StepPending {
			continue
		}
		if e.prerequisitesMet(rec, step) {
			group = append(group, step)
		}
	}
	return group
}

// prerequisitesMet applies the readiness invariant: every prerequisite
// must be completed, skipped, or failed-but-optional.
func (e *Engine) prerequisitesMet(rec *execution.Record, step *pipeline.Step) bool {
	for _, dep := range step.DependsOn {
		p := rec.Step(dep)
		if p == nil {
			return false
		}
		switch p.Status {
		case execution.StepCompleted, execution.StepSkipped:
		case execution.StepFailed:
			if !p.Optional {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// runGroup executes one ready group: sequential and iterative steps in
// declaration order, then parallel steps concurrently bounded by
// max_parallel_steps. Returns whether the pipeline must abort and the
// first required-failure message, if any.
func (e *Engine) runGroup(ctx context.Context, cfg *pipeline.Config, agents map[agentKey]agent.Agent, rec *execution.Record, group []*pipeline.Step, input json.RawMessage, logger zerolog.Logger) (bool, string) {
	var ordered, parallel []*pipeline.Step
	for _, step := range group {
		if e.gateStep(rec, step) {
			continue
		}
		if step.ExecutionMode == pipeline.ModeParallel {
			parallel = append(parallel, step)
		} else {
			ordered = append(ordered, step)
		}
	}

	requiredFailure := ""
	for _, step := range ordered {
		e.markRunning(rec, step)
		outcome := e.invokeStep(agents, step, input, e.execContext(rec), rec.CorrelationID)
		abort, failMsg := e.applyOutcome(ctx, cfg, rec, step, outcome, logger)
		if failMsg != "" && requiredFailure == "" {
			requiredFailure = failMsg
		}
		if abort {
			return true, requiredFailure
		}
		if ctx.Err() != nil {
			return false, requiredFailure
		}
	}

	if len(parallel) > 0 {
		abort, failMsg := e.runParallel(ctx, cfg, agents, rec, parallel, input, logger)
		if failMsg != "" && requiredFailure == "" {
			requiredFailure = failMsg
		}
		if abort {
			return true, requiredFailure
		}
	}
	return false, requiredFailure
}

// runParallel executes steps concurrently with a semaphore bound and a
// group-completion barrier. Outcomes are applied by this goroutine only.
func (e *Engine) runParallel(ctx context.Context, cfg *pipeline.Config, agents map[agentKey]agent.Agent, rec *execution.Record, steps []*pipeline.Step, input json.RawMessage, logger zerolog.Logger) (bool, string) {
	limit := int64(cfg.MaxParallelSteps)
	if limit <= 0 {
		limit = int64(len(steps))
	}
	sem := semaphore.NewWeighted(limit)
	outcomes := make(chan stepOutcome, len(steps))
	execCtx := e.execContext(rec)

	for _, step := range steps {
		e.markRunning(rec, step)
	}
	e.store.Save(rec)

	for _, step := range steps {
		step := step
		go func() {
			// The bound applies to collaborator invocations, not to
			// goroutine creation.
			if err := sem.Acquire(context.Background(), 1); err != nil {
				outcomes <- stepOutcome{name: step.Name(), err: err}
				return
			}
			defer sem.Release(1)
			outcomes <- e.invokeStep(agents, step, input, execCtx, rec.CorrelationID)
		}()
	}

	abort := false
	requiredFailure := ""
	for range steps {
		outcome := <-outcomes
		step := cfg.GetStep(outcome.name)
		stepAbort, failMsg := e.applyOutcome(ctx, cfg, rec, step, outcome, logger)
		if failMsg != "" && requiredFailure == "" {
			requiredFailure = failMsg
		}
		// The barrier drains every outcome even when aborting.
		abort = abort || stepAbort
	}
	return abort, requiredFailure
}

// gateStep evaluates run_if and marks the step skipped when the
// condition is false. Returns true when the step was gated off.
func (e *Engine) gateStep(rec *execution.Record, step *pipeline.Step) bool {
	if step.RunIf == "" {
		return false
	}
	ok, err := evaluateRunIf(step.RunIf, rec.Input, e.execContext(rec))
	if err != nil {
		e.logger.Warn().Err(err).
			Str("step", step.Name()).
			Msg("run_if evaluation failed; running step")
		return false
	}
	if ok {
		return false
	}
	now := time.Now().UTC()
	progress := rec.Step(step.Name())
	progress.Status = execution.StepSkipped
	progress.CompletedAt = &now
	e.store.Save(rec)
	e.stepMetric(execution.StepSkipped)
	e.publish(eventbus.TypeStepSkipped, rec.CorrelationID, map[string]any{
		"execution_id": rec.ExecutionID.String(),
		"step":         step.Name(),
		"run_if":       step.RunIf,
	})
	return true
}

func (e *Engine) markRunning(rec *execution.Record, step *pipeline.Step) {
	now := time.Now().UTC()
	progress := rec.Step(step.Name())
	progress.Status = execution.StepRunning
	progress.StartedAt = &now
	e.store.Save(rec)
	e.publish(eventbus.TypeStepStarted, rec.CorrelationID, map[string]any{
		"execution_id": rec.ExecutionID.String(),
		"step":         step.Name(),
	})
}

// execContext snapshots accumulated step results for a collaborator call.
func (e *Engine) execContext(rec *execution.Record) agent.Context {
	out := make(agent.Context, len(rec.Results))
	for k, v := range rec.Results {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// invokeStep runs one collaborator call (or the iterative loop) with the
// step's timeout. The timeout context derives from Background, not the
// pipeline context: in-flight steps are allowed to finish on cancel.
func (e *Engine) invokeStep(agents map[agentKey]agent.Agent, step *pipeline.Step, input json.RawMessage, execCtx agent.Context, correlationID string) stepOutcome {
	if step.ExecutionMode == pipeline.ModeIterative {
		return e.invokeIterative(agents, step, input, execCtx, correlationID)
	}

	ag := e.agentFor(agents, step.AgentType, step.ConfigType)
	if ag == nil {
		return stepOutcome{name: step.Name(), err: &StepExecutionError{Step: step.Name(), Reason: "agent instance missing"}}
	}

	timeout := e.defaultStepTimeout
	if step.TimeoutSeconds > 0 {
		timeout = time.Duration(step.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	res, err := ag.Process(ctx, input, execCtx)
	if ctx.Err() == context.DeadlineExceeded {
		return stepOutcome{name: step.Name(), err: &StepExecutionError{Step: step.Name(), Reason: ReasonStepTimeout}}
	}
	if err != nil {
		return stepOutcome{name: step.Name(), err: &StepExecutionError{Step: step.Name(), Reason: err.Error()}}
	}
	if res == nil || !res.Success {
		reason := "collaborator reported failure"
		if res != nil && res.Error != "" {
			reason = res.Error
		}
		return stepOutcome{name: step.Name(), err: &StepExecutionError{Step: step.Name(), Reason: reason}}
	}
	return stepOutcome{name: step.Name(), result: res.Result}
}

// applyOutcome mutates the record for one finished step and decides
// whether the pipeline must abort. Cancellation discards results of
// steps that finished after the cancel.
func (e *Engine) applyOutcome(ctx context.Context, cfg *pipeline.Config, rec *execution.Record, step *pipeline.Step, outcome stepOutcome, logger zerolog.Logger) (bool, string) {
	now := time.Now().UTC()
	progress := rec.Step(step.Name())
	progress.CompletedAt = &now

	if ctx.Err() != nil {
		progress.Status = execution.StepFailed
		progress.Error = "execution cancelled"
		e.stepMetric(execution.StepFailed)
		e.store.Save(rec)
		return false, ""
	}

	if outcome.err == nil {
		progress.Status = execution.StepCompleted
		rec.Results[step.Name()] = outcome.result
		e.store.Save(rec)
		e.stepMetric(execution.StepCompleted)
		e.publish(eventbus.TypeStepCompleted, rec.CorrelationID, map[string]any{
			"execution_id": rec.ExecutionID.String(),
			"step":         step.Name(),
		})
		logger.Info().Str("step", step.Name()).Msg("step completed")
		return false, ""
	}

	progress.Status = execution.StepFailed
	progress.Error = outcome.err.Error()
	e.store.Save(rec)
	e.stepMetric(execution.StepFailed)
	e.publish(eventbus.TypeStepFailed, rec.CorrelationID, map[string]any{
		"execution_id": rec.ExecutionID.String(),
		"step":         step.Name(),
		"error":        outcome.err.Error(),
		"optional":     step.Optional,
	})

	if step.Optional {
		warning := fmt.Sprintf("optional step %q failed: %v", step.Name(), outcome.err)
		rec.Warnings = append(rec.Warnings, warning)
		e.store.Save(rec)
		logger.Warn().Str("step", step.Name()).Err(outcome.err).Msg("optional step failed")
		return false, ""
	}

	logger.Error().Str("step", step.Name()).Err(outcome.err).Msg("required step failed")
	abort := cfg.FailureStrategy != pipeline.FailureContinue
	return abort, outcome.err.Error()
}

// finish marks the record terminal, skips never-scheduled steps, emits
// the terminal event, and hands completed records to the archiver.
func (e *Engine) finish(rec *execution.Record, requiredFailure string, cancelled bool, ctxErr error, logger zerolog.Logger) {
	for i := range rec.Steps {
		p := &rec.Steps[i]
		if p.Status == execution.StepPending {
			p.Status = execution.StepSkipped
			p.Error = "never scheduled"
		}
	}

	status := execution.StatusCompleted
	errMsg := ""
	switch {
	case cancelled:
		status = execution.StatusFailed
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			errMsg = "pipeline timeout exceeded"
		} else {
			errMsg = "execution cancelled"
		}
	case requiredFailure != "":
		status = execution.StatusFailed
		errMsg = requiredFailure
	}

	rec.Complete(status, errMsg)
	e.store.Save(rec)

	if e.metrics != nil {
		e.metrics.ExecutionsTotal.WithLabelValues(string(status)).Inc()
	}

	eventType := eventbus.TypePipelineCompleted
	if status == execution.StatusFailed {
		eventType = eventbus.TypePipelineFailed
	}
	e.publish(eventType, rec.CorrelationID, map[string]any{
		"execution_id": rec.ExecutionID.String(),
		"status":       string(status),
		"error":        errMsg,
	})
	logger.Info().Str("status", string(status)).Msg("pipeline finished")

	if e.archiver != nil && status == execution.StatusCompleted {
		go e.archiver.Archive(context.Background(), rec.Clone())
	}
}

func (e *Engine) stepMetric(status execution.StepStatus) {
	if e.metrics != nil {
		e.metrics.StepsTotal.WithLabelValues(string(status)).Inc()
	}
}

func (e *Engine) publish(t eventbus.Type, correlationID string, payload map[string]any) {
	e.bus.Publish(eventbus.Event{
		Type:          t,
		Source:        "engine",
		CorrelationID: correlationID,
		Payload:       payload,
	})
}
