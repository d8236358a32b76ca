package rag

// State identifies a stage of the query pipeline. Transitions are
// deterministic given the query context; only the model calls inside a
// stage are non-deterministic.
type State int

const (
	StateRetrieve State = iota
	StateValidateContext
	StateGenerate
	StateFallback
	StateFactCheck
	StateCorrect
	StateFinalize
	StateDone
)

func (s State) String() string {
	switch s {
	case StateRetrieve:
		return "retrieve"
	case StateValidateContext:
		return "validate_context"
	case StateGenerate:
		return "generate"
	case StateFallback:
		return "fallback"
	case StateFactCheck:
		return "fact_check"
	case StateCorrect:
		return "correct"
	case StateFinalize:
		return "finalize"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
