package reconcile

// State is a step of one reconciliation run.
type State int

const (
	StateUnknown State = iota
	StateQueried
	StateCreating
	StateUpdating
	StateDeleting
	StateNoop
	StateDone
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateQueried:
		return "queried"
	case StateCreating:
		return "creating"
	case StateUpdating:
		return "updating"
	case StateDeleting:
		return "deleting"
	case StateNoop:
		return "noop"
	case StateDone:
		return "done"
	default:
		return "invalid"
	}
}

// Action represents what reconciliation action needs to be taken.
type Action int

const (
	ActionNone Action = iota
	ActionCreate
	ActionUpdate
	ActionDelete
)

// String returns a human-readable name for the action.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// State returns the state the run enters to perform the action.
func (a Action) State() State {
	switch a {
	case ActionCreate:
		return StateCreating
	case ActionUpdate:
		return StateUpdating
	case ActionDelete:
		return StateDeleting
	default:
		return StateNoop
	}
}

// DetermineAction determines what action to take from the queried state.
// This is the core FSM logic for resource reconciliation.
func DetermineAction(disposition Disposition, exists, changed bool) Action {
	if disposition == Absent {
		return determineActionForAbsent(exists)
	}
	return determineActionForPresent(exists, changed)
}

func determineActionForPresent(exists, changed bool) Action {
	if !exists {
		return ActionCreate
	}
	if changed {
		return ActionUpdate
	}
	return ActionNone
}

func determineActionForAbsent(exists bool) Action {
	if exists {
		return ActionDelete
	}
	return ActionNone
}

// canTransition reports whether from -> to is an edge of the run's FSM.
func canTransition(from, to State) bool {
	switch from {
	case StateUnknown:
		return to == StateQueried
	case StateQueried:
		return to == StateCreating || to == StateUpdating || to == StateDeleting || to == StateNoop
	case StateCreating, StateUpdating, StateDeleting, StateNoop:
		return to == StateDone
	}
	return false
}
