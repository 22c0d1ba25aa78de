package core

// Action is a user-initiated operation offered on the dialog surface.
type Action string

const (
	ActionCancel  Action = "cancel"
	ActionRetry   Action = "retry"
	ActionRefresh Action = "refresh"
	ActionAbandon Action = "abandon"
	ActionQuery   Action = "query"
	ActionWaiting Action = "waiting"
)

// AvailableActions returns the actions a cashier may take in the given status
// and scan mode. The mapping is a pure function of its inputs; sessions ask it
// after every status change.
func AvailableActions(s Status, mode ScanMode) []Action {
	switch s {
	case StatusSuccess:
		return nil
	case StatusFailed, StatusTimeout:
		return []Action{ActionWaiting}
	case StatusCancelled, StatusClosed:
		return []Action{ActionAbandon, ActionRetry}
	case StatusProcessing, StatusPending:
		if mode == ScanPassive {
			return []Action{ActionCancel, ActionQuery}
		}
		return []Action{ActionCancel, ActionRefresh, ActionQuery}
	}
	return nil
}

// ActionAllowed reports whether action is currently offered.
func ActionAllowed(action Action, s Status, mode ScanMode) bool {
	for _, a := range AvailableActions(s, mode) {
		if a == action {
			return true
		}
	}
	return false
}
