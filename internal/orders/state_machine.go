package orders

import (
	"github.com/shopspring/decimal"

	"twsgo/internal/schema"
)

// Tracked holds the manager's view of one order.
type Tracked struct {
	Order        schema.Order
	State        schema.OrderState
	CumQty       decimal.Decimal
	AvgFillPrice decimal.Decimal
	Held         bool
	Children     []schema.OrderID
	LastStatus   schema.OrderStatus
}

// applyStatus folds a status event into the order. It is progress-only:
// duplicate terminal frames and out-of-order regressions are ignored. It
// reports whether the order newly entered a terminal state.
func (t *Tracked) applyStatus(ev schema.OrderStatus) (terminal bool, changed bool) {
	if t.State.Terminal() {
		return false, false
	}
	if ev.Status == schema.OrderStateUnknown || !t.State.Progresses(ev.Status) {
		return false, false
	}
	t.State = ev.Status
	t.LastStatus = ev
	if ev.Filled.GreaterThan(t.CumQty) {
		t.CumQty = ev.Filled
	}
	if ev.AvgFillPrice.Sign() > 0 {
		t.AvgFillPrice = ev.AvgFillPrice
	}
	return t.State.Terminal(), true
}

// applyExec folds an execution report into the cumulative quantity and the
// running weighted average fill price. Both are monotonically
// non-decreasing in magnitude; stale reports are ignored.
func (t *Tracked) applyExec(ev schema.ExecDetails) bool {
	if t.State.Terminal() && t.CumQty.GreaterThanOrEqual(ev.CumQty) {
		return false
	}
	if ev.CumQty.Sign() > 0 {
		if ev.CumQty.LessThan(t.CumQty) {
			return false
		}
		t.CumQty = ev.CumQty
	} else if ev.Shares.Sign() > 0 {
		t.CumQty = t.CumQty.Add(ev.Shares)
	}
	switch {
	case ev.AvgPrice.Sign() > 0:
		t.AvgFillPrice = ev.AvgPrice
	case ev.Shares.Sign() > 0 && ev.Price.Sign() > 0:
		prevQty := t.CumQty.Sub(ev.Shares)
		notional := t.AvgFillPrice.Mul(prevQty).Add(ev.Price.Mul(ev.Shares))
		if t.CumQty.Sign() > 0 {
			t.AvgFillPrice = notional.Div(t.CumQty)
		}
	}
	if !t.State.Terminal() && t.CumQty.Sign() > 0 && t.CumQty.LessThan(t.Order.Quantity) {
		if t.State.Progresses(schema.OrderStatePartFilled) {
			t.State = schema.OrderStatePartFilled
		}
	}
	return true
}
