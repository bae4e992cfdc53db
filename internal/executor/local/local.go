// Package local provides the in-process stage executor used when no external
// backend is configured. Stages run inside the service and report progress on
// a fixed cadence, which makes it the default for development and tests.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"contentjobs/internal/apperrors"
	"contentjobs/internal/pipeline"
)

// progressTicks is how many intra-stage progress reports each stage emits.
const progressTicks = 10

// Executor runs the generation stages in-process.
type Executor struct {
	cfg Config
}

// NewExecutor creates the executor.
func NewExecutor(cfg Config) *Executor {
	return &Executor{cfg: cfg.withDefaults()}
}

// Steps returns the number of configured stages.
func (e *Executor) Steps() int {
	return len(e.cfg.StageNames)
}

// Execute runs one stage, emitting progress every tick and honoring
// cancellation between ticks.
func (e *Executor) Execute(ctx context.Context, userID string, params json.RawMessage, stage int, progress func(float64)) (pipeline.StageResult, error) {
	if stage < 1 || stage > len(e.cfg.StageNames) {
		return pipeline.StageResult{}, apperrors.StageExecution(stage, fmt.Errorf("stage %d out of range 1..%d", stage, len(e.cfg.StageNames)))
	}
	name := e.cfg.StageNames[stage-1]

	tick := e.cfg.StageDuration / progressTicks
	for i := 1; i <= progressTicks; i++ {
		select {
		case <-ctx.Done():
			return pipeline.StageResult{}, ctx.Err()
		case <-time.After(tick):
		}
		progress(float64(i) * (100.0 / progressTicks))
	}

	output, err := json.Marshal(map[string]any{
		"stage":       stage,
		"name":        name,
		"userId":      userID,
		"generatedAt": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return pipeline.StageResult{}, apperrors.StageExecution(stage, err)
	}

	result := pipeline.StageResult{
		Output:       output,
		QualityScore: 0.9,
	}
	if len(params) == 0 {
		result.Warnings = []string{"no params supplied, stage used defaults"}
	}
	return result, nil
}
