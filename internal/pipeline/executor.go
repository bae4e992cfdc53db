package pipeline

import (
	"context"
	"encoding/json"
)

// StageResult is the output of one pipeline stage.
type StageResult struct {
	Output       json.RawMessage // opaque stage artifact
	QualityScore float64         // 0-1 self-assessed quality
	Warnings     []string        // non-fatal issues surfaced to the caller
}

// StageExecutor runs the stages of the content-generation pipeline. It is the
// opaque collaborator behind the orchestrator: the service never inspects
// stage outputs beyond recording them.
//
// Execute runs one stage (1-based) for a user. Implementations should honor
// ctx cancellation for mid-stage abort and may report intra-stage progress
// (0-100) through the progress callback. progress is never nil.
type StageExecutor interface {
	Execute(ctx context.Context, userID string, params json.RawMessage, stage int, progress func(float64)) (StageResult, error)

	// Steps returns the number of stages in the pipeline. Constant for the
	// lifetime of the executor.
	Steps() int
}
