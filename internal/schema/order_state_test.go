package schema

import "testing"

func TestParseOrderState(t *testing.T) {
	cases := map[string]OrderState{
		"PendingSubmit":   OrderStatePendingSubmit,
		"Submitted":       OrderStateSubmitted,
		"PartiallyFilled": OrderStatePartFilled,
		"Filled":          OrderStateFilled,
		"Cancelled":       OrderStateCancelled,
		"ApiCancelled":    OrderStateCancelled,
		"Inactive":        OrderStateRejected,
		"SomethingNew":    OrderStateUnknown,
	}
	for wire, want := range cases {
		if got := ParseOrderState(wire); got != want {
			t.Errorf("ParseOrderState(%q) = %v, want %v", wire, got, want)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []OrderState{OrderStateFilled, OrderStateCancelled, OrderStateRejected} {
		if !s.Terminal() {
			t.Errorf("%v not terminal", s)
		}
	}
	for _, s := range []OrderState{OrderStateCreated, OrderStateSubmitted, OrderStatePendingCancel} {
		if s.Terminal() {
			t.Errorf("%v unexpectedly terminal", s)
		}
	}
}

func TestProgressesIgnoresRegression(t *testing.T) {
	if OrderStateSubmitted.Progresses(OrderStatePendingSubmit) {
		t.Fatal("Submitted -> PendingSubmit is a regression")
	}
	if !OrderStateSubmitted.Progresses(OrderStatePartFilled) {
		t.Fatal("Submitted -> PartiallyFilled must progress")
	}
	if !OrderStatePendingCancel.Progresses(OrderStateFilled) {
		t.Fatal("a fill can still land after a cancel request")
	}
}
