package domain

import "fmt"

// JobStatus represents the pipeline state of a job. The value set and the
// legal edges between values are fixed; every status write must pass
// IsValidTransition before it is persisted.
type JobStatus string

const (
	// StatusPendingUpload is the initial state. Intake creates the job
	// record here before writing artifacts and advances it to
	// StatusUploaded once every write is durable.
	StatusPendingUpload JobStatus = "pending-upload"

	StatusUploaded   JobStatus = "uploaded"
	StatusProcessing JobStatus = "processing"

	// Analysis stages, in pipeline order.
	StatusAnalyzingDiff       JobStatus = "analyzing-diff"
	StatusAnalyzingCubicacion JobStatus = "analyzing-cubicacion"
	StatusGeneratingImpactos  JobStatus = "generating-impactos"

	// Terminal states. No outgoing edges.
	StatusCompleted JobStatus = "completed"
	StatusError     JobStatus = "error"
)

// jobTransitions is the canonical transition table. It is the single source
// of truth for status legality; no other status strings may ever reach the
// job store. Every non-terminal state may fail into StatusError.
var jobTransitions = map[JobStatus][]JobStatus{
	StatusPendingUpload:       {StatusUploaded, StatusError},
	StatusUploaded:            {StatusProcessing, StatusError},
	StatusProcessing:          {StatusAnalyzingDiff, StatusError},
	StatusAnalyzingDiff:       {StatusAnalyzingCubicacion, StatusError},
	StatusAnalyzingCubicacion: {StatusGeneratingImpactos, StatusError},
	StatusGeneratingImpactos:  {StatusCompleted, StatusError},

	StatusCompleted: {},
	StatusError:     {},
}

// AllStatuses returns every valid job status.
func AllStatuses() []JobStatus {
	return []JobStatus{
		StatusPendingUpload, StatusUploaded, StatusProcessing,
		StatusAnalyzingDiff, StatusAnalyzingCubicacion, StatusGeneratingImpactos,
		StatusCompleted, StatusError,
	}
}

// IsValidStatus reports whether s is one of the declared states.
func IsValidStatus(s JobStatus) bool {
	_, ok := jobTransitions[s]
	return ok
}

// IsTerminalStatus reports whether s has no outgoing edges.
func IsTerminalStatus(s JobStatus) bool {
	edges, ok := jobTransitions[s]
	return ok && len(edges) == 0
}

// IsValidTransition reports whether the edge from -> to is declared in the
// transition table. Self-loops and stage skips are rejected.
func IsValidTransition(from, to JobStatus) bool {
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError reports an attempt to persist a status edge the FSM
// does not declare.
type InvalidTransitionError struct {
	From JobStatus
	To   JobStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid job status transition: %s -> %s", e.From, e.To)
}

// CheckTransition returns an *InvalidTransitionError if from -> to is not a
// declared edge, nil otherwise.
func CheckTransition(from, to JobStatus) error {
	if !IsValidTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// StatusLabel returns the human-readable label shown to polling clients for
// each state.
func StatusLabel(s JobStatus) string {
	switch s {
	case StatusPendingUpload:
		return "Esperando carga de archivos"
	case StatusUploaded:
		return "Archivos recibidos"
	case StatusProcessing:
		return "Procesando"
	case StatusAnalyzingDiff:
		return "Analizando diferencias entre planos"
	case StatusAnalyzingCubicacion:
		return "Analizando cubicación"
	case StatusGeneratingImpactos:
		return "Generando impactos"
	case StatusCompleted:
		return "Análisis completado"
	case StatusError:
		return "Error en el análisis"
	default:
		return string(s)
	}
}
