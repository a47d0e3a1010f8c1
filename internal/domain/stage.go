package domain

import "strings"

// Stage identifies one step of the analysis pipeline. Stages run strictly in
// the order returned by PipelineStages; each later stage receives the
// accumulated results of all earlier ones.
type Stage string

const (
	// StageUpload covers intake artifact writes and pipeline-start artifact
	// resolution. It is not an inference stage but shares the failure
	// tagging scheme.
	StageUpload Stage = "upload"

	StageDiff       Stage = "diff"
	StageCubicacion Stage = "cubicacion"
	StageImpactos   Stage = "impactos"
)

// PipelineStages returns the inference stages in execution order.
func PipelineStages() []Stage {
	return []Stage{StageDiff, StageCubicacion, StageImpactos}
}

// FailureCode returns the stage-tagged error code persisted in ErrorInfo
// when this stage fails.
func (s Stage) FailureCode() string {
	return strings.ToUpper(string(s)) + "_FAILED"
}

// Status returns the FSM state a job is moved to while this stage runs.
func (s Stage) Status() JobStatus {
	switch s {
	case StageDiff:
		return StatusAnalyzingDiff
	case StageCubicacion:
		return StatusAnalyzingCubicacion
	case StageImpactos:
		return StatusGeneratingImpactos
	default:
		return StatusProcessing
	}
}
