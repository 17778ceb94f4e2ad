package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// Mode controls how ExecuteSteps reacts to a failed step.
type Mode string

const (
	// ModeStrict stops at the first failed step.
	ModeStrict Mode = "strict"
	// ModeLenient records failures and runs the remaining steps.
	ModeLenient Mode = "lenient"
)

// Executor is a single named unit of maintenance work.
type Executor interface {
	// Execute performs the step's main operation
	Execute(ctx context.Context) error

	// IsCompleted checks if the step's output is already available
	IsCompleted(ctx context.Context) bool

	// GetName returns the step name
	GetName() string
}

// StepExecutor is an Executor with preconditions checked before Execute.
type StepExecutor interface {
	Executor

	// Validate validates preconditions before execution
	Validate(ctx context.Context) error
}

// ExecutionResult represents the result of a sequence of steps
type ExecutionResult struct {
	Success     bool          `json:"success"`
	StepCount   int           `json:"step_count"`
	Duration    time.Duration `json:"duration"`
	StepResults []StepResult  `json:"step_results"`
	Error       string        `json:"error,omitempty"`
}

// StepResult represents the result of a single step
type StepResult struct {
	StepName string        `json:"step_name"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// BaseExecutor runs steps sequentially and records their outcome.
type BaseExecutor struct {
	logger *logrus.Logger
	clock  clock.PassiveClock
}

// NewBaseExecutor creates a new base executor
func NewBaseExecutor(logger *logrus.Logger) *BaseExecutor {
	if logger == nil {
		logger = logrus.New()
	}
	return &BaseExecutor{
		logger: logger,
		clock:  clock.RealClock{},
	}
}

// ExecuteSteps executes a list of steps and returns results.
// In strict mode the first failure aborts the run and is returned as an error.
// In lenient mode failures are reported in the result only.
func (be *BaseExecutor) ExecuteSteps(ctx context.Context, steps []Executor, mode Mode) (*ExecutionResult, error) {
	be.logger.Debugf("Starting %d %s steps", len(steps), mode)

	startTime := be.clock.Now()
	result := &ExecutionResult{
		StepResults: make([]StepResult, 0, len(steps)),
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			result.Success = false
			result.Error = err.Error()
			result.Duration = be.clock.Since(startTime)
			result.StepCount = len(result.StepResults)
			return result, fmt.Errorf("interrupted before step %s: %w", step.GetName(), err)
		}

		stepResult := be.executeStep(ctx, step, mode)
		result.StepResults = append(result.StepResults, stepResult)

		if !stepResult.Success {
			if mode == ModeStrict {
				result.Success = false
				result.Error = stepResult.Error
				result.Duration = be.clock.Since(startTime)
				result.StepCount = len(result.StepResults)

				be.logger.Errorf("Step %s failed: %s (completedSteps: %d, totalSteps: %d)",
					stepResult.StepName, stepResult.Error, len(result.StepResults), len(steps))

				return result, fmt.Errorf("step %s failed: %w", stepResult.StepName, errors.New(stepResult.Error))
			}
			be.logger.Warnf("Step %s failed: %s (continuing with remaining steps)",
				stepResult.StepName, stepResult.Error)
		}
	}

	successfulSteps := be.countSuccessfulSteps(result.StepResults)
	result.Success = successfulSteps == len(steps)
	result.Duration = be.clock.Since(startTime)
	result.StepCount = len(result.StepResults)

	if result.Success {
		be.logger.Debugf("All %d %s steps completed (duration: %v)", result.StepCount, mode, result.Duration)
	} else {
		be.logger.Warnf("Steps completed with some failures (duration: %v, successfulSteps: %d, totalSteps: %d)",
			result.Duration, successfulSteps, len(steps))
		result.Error = fmt.Sprintf("completed with %d failed steps out of %d total steps",
			len(steps)-successfulSteps, len(steps))
	}

	return result, nil
}

func (be *BaseExecutor) executeStep(ctx context.Context, step Executor, mode Mode) StepResult {
	stepName := step.GetName()
	startTime := be.clock.Now()

	if step.IsCompleted(ctx) {
		be.logger.Debugf("Step %s already completed", stepName)
		return be.createStepResult(stepName, startTime, true, "")
	}

	if validating, ok := step.(StepExecutor); ok {
		if err := validating.Validate(ctx); err != nil {
			be.logger.Errorf("Step %s validation failed: %s", stepName, err)
			return be.createStepResult(stepName, startTime, false, fmt.Sprintf("validation failed: %v", err))
		}
	}

	be.logger.Debugf("Executing %s step %s", mode, stepName)
	if err := step.Execute(ctx); err != nil {
		be.logger.Errorf("Step %s failed with error: %s (duration %s)", stepName, err, be.clock.Since(startTime))
		return be.createStepResult(stepName, startTime, false, err.Error())
	}

	be.logger.Debugf("Step %s completed with duration %s", stepName, be.clock.Since(startTime))
	return be.createStepResult(stepName, startTime, true, "")
}

func (be *BaseExecutor) createStepResult(stepName string, startTime time.Time, success bool, errorMsg string) StepResult {
	return StepResult{
		StepName: stepName,
		Success:  success,
		Duration: be.clock.Since(startTime),
		Error:    errorMsg,
	}
}

func (be *BaseExecutor) countSuccessfulSteps(stepResults []StepResult) int {
	count := 0
	for _, result := range stepResults {
		if result.Success {
			count++
		}
	}
	return count
}

// Step adapts a function into a StepExecutor.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
	// Check, when set, validates preconditions before Run.
	Check func(ctx context.Context) error
	// Done, when set, reports that the step can be skipped.
	Done func() bool
}

func (s Step) Execute(ctx context.Context) error { return s.Run(ctx) }

func (s Step) Validate(ctx context.Context) error {
	if s.Check == nil {
		return nil
	}
	return s.Check(ctx)
}

func (s Step) IsCompleted(context.Context) bool { return s.Done != nil && s.Done() }

func (s Step) GetName() string { return s.Name }
