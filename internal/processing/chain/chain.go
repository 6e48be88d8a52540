package chain

import (
	"fmt"
	"time"

	"opencv-bridge/internal/logger"
	"opencv-bridge/internal/opencv/memory"
	"opencv-bridge/internal/opencv/safe"
)

// ProcessingStep transforms one Mat into another. Outputs must be allocated from scope.
type ProcessingStep interface {
	Apply(scope *memory.Scope, input *safe.Mat) (*safe.Mat, error)
	Name() string
}

type ProcessingChain struct {
	steps  []ProcessingStep
	logger logger.Logger
}

func NewProcessingChain(log logger.Logger, steps ...ProcessingStep) *ProcessingChain {
	return &ProcessingChain{
		steps:  steps,
		logger: logger.OrNoOp(log),
	}
}

// Execute runs every step in order. Intermediate Mats stay owned by scope and
// are released when the caller closes it.
func (pc *ProcessingChain) Execute(scope *memory.Scope, input *safe.Mat) (*safe.Mat, error) {
	current := input

	for _, step := range pc.steps {
		start := time.Now()

		result, err := step.Apply(scope, current)
		if err != nil {
			return nil, fmt.Errorf("step %s failed: %w", step.Name(), err)
		}

		pc.logger.Debug("ProcessingChain", "step completed", map[string]interface{}{
			"step":     step.Name(),
			"rows":     result.Rows(),
			"cols":     result.Cols(),
			"channels": result.Channels(),
			"micros":   time.Since(start).Microseconds(),
		})

		current = result
	}

	return current, nil
}
