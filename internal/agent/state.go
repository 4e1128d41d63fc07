package agent

// State is one step of the run state machine:
//
//	awaiting_model -> dispatching_tools -> (awaiting_model | terminated | failed)
//
// awaiting_model may also go straight to terminated or failed.
type State string

const (
	StateAwaitingModel    State = "awaiting_model"
	StateDispatchingTools State = "dispatching_tools"
	StateTerminated       State = "terminated"
	StateFailed           State = "failed"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateTerminated || s == StateFailed
}

// CanTransition reports whether s -> next is a legal move.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateAwaitingModel:
		return next == StateDispatchingTools || next == StateTerminated || next == StateFailed
	case StateDispatchingTools:
		return next == StateAwaitingModel || next == StateTerminated || next == StateFailed
	default:
		return false
	}
}
