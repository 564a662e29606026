package training

import "fmt"

// State is a position in the training state machine.
type State int

const (
	Idle State = iota
	Validated
	CachePrepared
	ParallelRecipe
	NonParallelRecipe
	Complete
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validated:
		return "validated"
	case CachePrepared:
		return "cache_prepared"
	case ParallelRecipe:
		return "parallel_recipe"
	case NonParallelRecipe:
		return "nonparallel_recipe"
	case Complete:
		return "complete"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = map[State][]State{
	Idle:              {Validated},
	Validated:         {CachePrepared},
	CachePrepared:     {ParallelRecipe, NonParallelRecipe},
	ParallelRecipe:    {Complete},
	NonParallelRecipe: {Complete},
}

// CanTransition reports whether from -> to is a legal move. Aborted is
// reachable from every non-terminal state.
func CanTransition(from, to State) bool {
	if from == Complete || from == Aborted {
		return false
	}
	if to == Aborted {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
