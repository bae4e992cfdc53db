package session

import (
	"encoding/json"
	"time"
)

// StageError records a failed stage in the snapshot's error list.
type StageError struct {
	Stage   int       `json:"stage"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// ProgressSnapshot is the externally visible progress of a session.
//
// CurrentStep counts completed stages (0..TotalSteps); the stage currently
// executing is CurrentStep+1. A stage that fails is never counted, so after a
// failure on stage k CurrentStep stays at k-1. The snapshot is replaced as a
// whole on every update and deep-copied on read, so readers never observe a
// partial mix of old and new state.
type ProgressSnapshot struct {
	CurrentStep     int                     `json:"current_step"`
	TotalSteps      int                     `json:"total_steps"`
	StepProgress    float64                 `json:"step_progress"`    // 0-100 within the executing stage
	OverallProgress float64                 `json:"overall_progress"` // 0-100, derived, never decreases
	StepResults     map[int]json.RawMessage `json:"step_results,omitempty"`
	QualityScores   map[int]float64         `json:"quality_scores,omitempty"`
	Errors          []StageError            `json:"errors,omitempty"`
	Warnings        []string                `json:"warnings,omitempty"`
	LastUpdated     time.Time               `json:"last_updated"`
}

// NewSnapshot returns the initial snapshot for a pipeline of totalSteps stages.
func NewSnapshot(totalSteps int) ProgressSnapshot {
	return ProgressSnapshot{
		TotalSteps:    totalSteps,
		StepResults:   make(map[int]json.RawMessage),
		QualityScores: make(map[int]float64),
		LastUpdated:   time.Now().UTC(),
	}
}

// Overall derives the overall percentage from completed stages plus progress
// within the executing stage, clamped to [0,100].
func Overall(completed int, stepProgress float64, totalSteps int) float64 {
	if totalSteps <= 0 {
		return 0
	}
	p := (float64(completed) + stepProgress/100) / float64(totalSteps) * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// SetStepProgress records progress within the currently executing stage
// without advancing CurrentStep. OverallProgress never regresses.
func (p *ProgressSnapshot) SetStepProgress(stepProgress float64) {
	if stepProgress < 0 {
		stepProgress = 0
	}
	if stepProgress > 100 {
		stepProgress = 100
	}
	p.StepProgress = stepProgress
	p.OverallProgress = max(p.OverallProgress, Overall(p.CurrentStep, stepProgress, p.TotalSteps))
	p.LastUpdated = time.Now().UTC()
}

// CompleteStage records a stage result and advances CurrentStep.
func (p *ProgressSnapshot) CompleteStage(stage int, result json.RawMessage, score float64, warnings []string) {
	if p.StepResults == nil {
		p.StepResults = make(map[int]json.RawMessage)
	}
	if p.QualityScores == nil {
		p.QualityScores = make(map[int]float64)
	}
	p.StepResults[stage] = result
	p.QualityScores[stage] = score
	p.Warnings = append(p.Warnings, warnings...)
	if stage > p.CurrentStep {
		p.CurrentStep = stage
	}
	p.StepProgress = 0
	p.OverallProgress = max(p.OverallProgress, Overall(p.CurrentStep, 0, p.TotalSteps))
	p.LastUpdated = time.Now().UTC()
}

// RecordError appends a stage error. CurrentStep is left untouched: a failed
// stage never counts as completed.
func (p *ProgressSnapshot) RecordError(stage int, message string) {
	p.Errors = append(p.Errors, StageError{
		Stage:   stage,
		Message: message,
		Time:    time.Now().UTC(),
	})
	p.LastUpdated = time.Now().UTC()
}

// Clone returns a deep copy of the snapshot.
func (p ProgressSnapshot) Clone() ProgressSnapshot {
	c := p
	if p.StepResults != nil {
		c.StepResults = make(map[int]json.RawMessage, len(p.StepResults))
		for k, v := range p.StepResults {
			c.StepResults[k] = append(json.RawMessage(nil), v...)
		}
	}
	if p.QualityScores != nil {
		c.QualityScores = make(map[int]float64, len(p.QualityScores))
		for k, v := range p.QualityScores {
			c.QualityScores[k] = v
		}
	}
	c.Errors = append([]StageError(nil), p.Errors...)
	c.Warnings = append([]string(nil), p.Warnings...)
	return c
}
