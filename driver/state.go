// Package driver implements the per-worker SMC loop (§4.5) and its
// state machine (§4.6).
package driver

// State is one of the seven states a worker occupies during the SMC
// loop.
type State int

const (
	Loading State = iota
	Proposing
	Scoring
	Saving
	Flushing
	Terminated
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "Loading"
	case Proposing:
		return "Proposing"
	case Scoring:
		return "Scoring"
	case Saving:
		return "Saving"
	case Flushing:
		return "Flushing"
	case Terminated:
		return "Terminated"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Event is a transition trigger recognised by Transition.
type Event int

const (
	// EventMetadataLoaded fires once generation metadata is in hand.
	EventMetadataLoaded Event = iota
	// EventTargetReached fires when the target generation has been
	// reached and the job is configured to terminate there.
	EventTargetReached
	// EventCandidateProduced fires once a candidate proposal exists.
	EventCandidateProduced
	// EventFlushTriggered fires when the accepted-particle count meets
	// the configured target.
	EventFlushTriggered
	// EventScoreSucceeded fires when model.Score returns successfully.
	EventScoreSucceeded
	// EventParticleError fires on a recoverable particle-local error.
	EventParticleError
	// EventSaved fires after any particle save, successful or stale.
	EventSaved
	// EventFlushed fires after a flush attempt, successful, raced, or
	// aborted.
	EventFlushed
	// EventFatal fires on a fatal infrastructure or system error and is
	// valid from every state.
	EventFatal
)

// transitions is the table of valid (state, event) -> state edges,
// excluding the universal Any -> Failed edge on EventFatal, which
// Transition checks first.
var transitions = map[State]map[Event]State{
	Loading: {
		EventMetadataLoaded: Proposing,
		EventTargetReached:  Terminated,
	},
	Proposing: {
		EventCandidateProduced: Scoring,
		EventFlushTriggered:    Flushing,
	},
	Scoring: {
		EventScoreSucceeded: Saving,
		EventParticleError:  Proposing,
	},
	Saving: {
		EventSaved: Loading,
	},
	Flushing: {
		EventFlushed: Loading,
	},
}

// Transition returns the state reached from "from" on event "ev", and
// whether that edge is valid. EventFatal is valid from every
// non-terminal state and always leads to Failed.
func Transition(from State, ev Event) (State, bool) {
	if from == Terminated || from == Failed {
		return from, false
	}
	if ev == EventFatal {
		return Failed, true
	}
	edges, ok := transitions[from]
	if !ok {
		return from, false
	}
	to, ok := edges[ev]
	return to, ok
}
