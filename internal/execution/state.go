package execution

import "neo4j-graphql/internal/planner"

// State is the lifecycle stage of one request.
type State int

const (
	Planning State = iota
	Executing
	Merging
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Planning:
		return "planning"
	case Executing:
		return "executing"
	case Merging:
		return "merging"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// StateFunc observes lifecycle transitions. Executing is reported once per statement with the
// fragment being run, possibly from several goroutines; other states carry a nil fragment.
type StateFunc func(State, *planner.Fragment)
