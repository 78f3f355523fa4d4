package schema

// OrderState tracks the lifecycle of an order.
type OrderState uint16

const (
	OrderStateUnknown OrderState = iota
	OrderStateCreated
	OrderStatePendingSubmit
	OrderStatePreSubmitted
	OrderStateSubmitted
	OrderStatePartFilled
	OrderStatePendingCancel
	OrderStateFilled
	OrderStateCancelled
	OrderStateRejected
)

var stateNames = map[OrderState]string{
	OrderStateCreated:       "Created",
	OrderStatePendingSubmit: "PendingSubmit",
	OrderStatePreSubmitted:  "PreSubmitted",
	OrderStateSubmitted:     "Submitted",
	OrderStatePartFilled:    "PartiallyFilled",
	OrderStatePendingCancel: "PendingCancel",
	OrderStateFilled:        "Filled",
	OrderStateCancelled:     "Cancelled",
	OrderStateRejected:      "Rejected",
}

var wireStates = map[string]OrderState{
	"PendingSubmit":   OrderStatePendingSubmit,
	"PreSubmitted":    OrderStatePreSubmitted,
	"Submitted":       OrderStateSubmitted,
	"PartiallyFilled": OrderStatePartFilled,
	"PendingCancel":   OrderStatePendingCancel,
	"Filled":          OrderStateFilled,
	"Cancelled":       OrderStateCancelled,
	"ApiCancelled":    OrderStateCancelled,
	"Inactive":        OrderStateRejected,
}

func (s OrderState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// ParseOrderState maps a wire status string to an OrderState.
func ParseOrderState(status string) OrderState {
	if s, ok := wireStates[status]; ok {
		return s
	}
	return OrderStateUnknown
}

// Terminal reports whether the state admits no further transitions.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCancelled, OrderStateRejected:
		return true
	default:
		return false
	}
}

// progressRank orders states so that duplicate or stale status events can be
// ignored: a transition is applied only when the target rank is >= current.
var progressRank = map[OrderState]int{
	OrderStateUnknown:       0,
	OrderStateCreated:       1,
	OrderStatePendingSubmit: 2,
	OrderStatePreSubmitted:  3,
	OrderStateSubmitted:     4,
	OrderStatePartFilled:    5,
	OrderStatePendingCancel: 6,
	OrderStateFilled:        7,
	OrderStateCancelled:     7,
	OrderStateRejected:      7,
}

// Progresses reports whether moving from s to next represents equal or
// further lifecycle progress. Regressions must be ignored by appliers.
func (s OrderState) Progresses(next OrderState) bool {
	return progressRank[next] >= progressRank[s]
}
