package orders

import (
	"fmt"
	"sync"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"twsgo/internal/schema"
	"twsgo/pkg/exception"
)

// Sender issues wire requests on the manager's behalf. The connection
// manager implements it; tests substitute a recorder.
type Sender interface {
	SendPlaceOrder(schema.Order) error
	SendCancelOrder(schema.OrderID) error
}

// TerminalFunc is notified once per order when it reaches a terminal
// state. The event is the status that closed the order.
type TerminalFunc func(schema.OrderID, schema.OrderStatus)

// Manager owns order lifecycle state. Status and execution events are the
// only mutators of an order's progress; submit/cancel drive intent.
type Manager struct {
	mu         sync.Mutex
	sender     Sender
	nextID     func() schema.OrderID
	onTerminal TerminalFunc
	orders     map[schema.OrderID]*Tracked
	oca        map[string][]schema.OrderID
}

// NewManager creates an order manager. nextID supplies fresh order ids
// (seeded from the gateway's NextValidId announcement).
func NewManager(sender Sender, nextID func() schema.OrderID, onTerminal TerminalFunc) *Manager {
	return &Manager{
		sender:     sender,
		nextID:     nextID,
		onTerminal: onTerminal,
		orders:     make(map[schema.OrderID]*Tracked),
		oca:        make(map[string][]schema.OrderID),
	}
}

// Submit registers an order and, unless hold is set, transmits it together
// with any bracket children. Held orders stay local until Transmit.
//
// Reusing the id of a live order is a modify-in-place: the updated order is
// re-sent under the same id. Reusing a terminal id is rejected.
func (m *Manager) Submit(order schema.Order, hold bool) (schema.OrderID, error) {
	m.mu.Lock()
	if order.OrderID == 0 {
		order.OrderID = m.nextID()
	}
	if existing, ok := m.orders[order.OrderID]; ok {
		if existing.State.Terminal() {
			m.mu.Unlock()
			return 0, errors.Wrapf(exception.ErrOrderTerminal, "resubmit id %d", order.OrderID)
		}
		return m.modifyLocked(existing, order)
	}

	tracked := &Tracked{Order: order, State: schema.OrderStateCreated, Held: hold}
	m.orders[order.OrderID] = tracked

	var children []*Tracked
	if order.HasBracket() {
		children = m.buildBracketLocked(tracked)
	}

	if hold {
		m.mu.Unlock()
		return order.OrderID, nil
	}
	return m.transmitLocked(tracked, children)
}

// Transmit sends a previously held order (and its children) to the
// gateway.
func (m *Manager) Transmit(id schema.OrderID) error {
	m.mu.Lock()
	tracked, ok := m.orders[id]
	if !ok {
		m.mu.Unlock()
		return exception.ErrUnknownOrder
	}
	if !tracked.Held {
		m.mu.Unlock()
		return exception.ErrOrderNotHeld
	}
	children := make([]*Tracked, 0, len(tracked.Children))
	for _, cid := range tracked.Children {
		if child, ok := m.orders[cid]; ok {
			children = append(children, child)
		}
	}
	_, err := m.transmitLocked(tracked, children)
	return err
}

// Cancel requests cancellation of a non-terminal order. Cancelling a held
// order removes it and its children locally without touching the network.
func (m *Manager) Cancel(id schema.OrderID) error {
	m.mu.Lock()
	tracked, ok := m.orders[id]
	if !ok {
		m.mu.Unlock()
		return exception.ErrUnknownOrder
	}
	if tracked.State.Terminal() {
		m.mu.Unlock()
		return errors.Wrapf(exception.ErrOrderTerminal, "cancel id %d", id)
	}
	if tracked.Held {
		m.removeLocalLocked(tracked)
		m.mu.Unlock()
		return nil
	}
	tracked.State = schema.OrderStatePendingCancel
	m.mu.Unlock()
	return m.sender.SendCancelOrder(id)
}

// ApplyStatus is the sole status-event mutator of order state. Unknown
// ids, duplicates and regressions are dropped. A bracket child reaching a
// terminal state triggers cancellation of its OCA siblings.
func (m *Manager) ApplyStatus(ev schema.OrderStatus) bool {
	m.mu.Lock()
	tracked, ok := m.orders[ev.OrderID]
	if !ok {
		m.mu.Unlock()
		logs.Infof("status for unknown order %d dropped", ev.OrderID)
		return false
	}
	terminal, changed := tracked.applyStatus(ev)

	var cancelSiblings []schema.OrderID
	if terminal && tracked.Order.OCAGroup != "" {
		for _, sid := range m.oca[tracked.Order.OCAGroup] {
			if sid == ev.OrderID {
				continue
			}
			if sibling, ok := m.orders[sid]; ok && !sibling.State.Terminal() &&
				sibling.State != schema.OrderStatePendingCancel {
				sibling.State = schema.OrderStatePendingCancel
				cancelSiblings = append(cancelSiblings, sid)
			}
		}
	}
	m.mu.Unlock()

	for _, sid := range cancelSiblings {
		if err := m.sender.SendCancelOrder(sid); err != nil {
			logs.Errorf("cancel oca sibling %d, err: %+v", sid, err)
		}
	}
	if terminal && m.onTerminal != nil {
		m.onTerminal(ev.OrderID, ev)
	}
	return changed
}

// ApplyExec folds an execution report into the order's fill accumulators.
func (m *Manager) ApplyExec(ev schema.ExecDetails) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	tracked, ok := m.orders[ev.OrderID]
	if !ok {
		logs.Infof("execution for unknown order %d dropped", ev.OrderID)
		return false
	}
	return tracked.applyExec(ev)
}

// Get returns a copy of the tracked order.
func (m *Manager) Get(id schema.OrderID) (Tracked, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tracked, ok := m.orders[id]
	if !ok {
		return Tracked{}, false
	}
	return *tracked, true
}

// Open returns copies of all non-terminal orders.
func (m *Manager) Open() []Tracked {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Tracked, 0, len(m.orders))
	for _, tracked := range m.orders {
		if !tracked.State.Terminal() {
			out = append(out, *tracked)
		}
	}
	return out
}

// buildBracketLocked creates the take-profit / stop-loss children linked
// to the parent through an OCA group with cancel-on-fill semantics.
func (m *Manager) buildBracketLocked(parent *Tracked) []*Tracked {
	order := &parent.Order
	group := order.OCAGroup
	if group == "" {
		group = fmt.Sprintf("bracket-%d", order.OrderID)
		order.OCAGroup = group
	}

	opposite := schema.ActionSell
	if order.Action == schema.ActionSell {
		opposite = schema.ActionBuy
	}

	var children []*Tracked
	if !order.TakeProfit.IsZero() {
		tp := schema.Order{
			OrderID:    m.nextID(),
			ParentID:   order.OrderID,
			Contract:   order.Contract,
			Action:     opposite,
			Type:       schema.OrderTypeLimit,
			Quantity:   order.Quantity,
			LimitPrice: order.TakeProfit,
			TIF:        order.TIF,
			OCAGroup:   group,
			OCAType:    schema.OCACancelWithBlock,
			Account:    order.Account,
		}
		children = append(children, m.addChildLocked(parent, tp))
	}
	if !order.StopLoss.IsZero() {
		sl := schema.Order{
			OrderID:  m.nextID(),
			ParentID: order.OrderID,
			Contract: order.Contract,
			Action:   opposite,
			Type:     schema.OrderTypeStop,
			Quantity: order.Quantity,
			AuxPrice: order.StopLoss,
			TIF:      order.TIF,
			OCAGroup: group,
			OCAType:  schema.OCACancelWithBlock,
			Account:  order.Account,
		}
		children = append(children, m.addChildLocked(parent, sl))
	}
	return children
}

func (m *Manager) addChildLocked(parent *Tracked, child schema.Order) *Tracked {
	tracked := &Tracked{Order: child, State: schema.OrderStateCreated, Held: parent.Held}
	m.orders[child.OrderID] = tracked
	m.oca[child.OCAGroup] = append(m.oca[child.OCAGroup], child.OrderID)
	parent.Children = append(parent.Children, child.OrderID)
	return tracked
}

// transmitLocked sends the parent and its children. The parent and all but
// the last child carry transmit=false so the gateway releases the whole
// bracket atomically. Unlocks m.mu.
func (m *Manager) transmitLocked(parent *Tracked, children []*Tracked) (schema.OrderID, error) {
	parent.Held = false
	parent.State = schema.OrderStatePendingSubmit
	toSend := make([]schema.Order, 0, 1+len(children))

	parentOrder := parent.Order
	parentOrder.Transmit = len(children) == 0
	toSend = append(toSend, parentOrder)
	for i, child := range children {
		child.Held = false
		child.State = schema.OrderStatePendingSubmit
		childOrder := child.Order
		childOrder.Transmit = i == len(children)-1
		toSend = append(toSend, childOrder)
	}
	id := parent.Order.OrderID
	m.mu.Unlock()

	for _, order := range toSend {
		if err := m.sender.SendPlaceOrder(order); err != nil {
			return 0, errors.Wrapf(err, "place order %d", order.OrderID)
		}
	}
	return id, nil
}

// modifyLocked re-sends an updated order under its existing id. Unlocks
// m.mu.
func (m *Manager) modifyLocked(existing *Tracked, order schema.Order) (schema.OrderID, error) {
	order.ParentID = existing.Order.ParentID
	order.OCAGroup = existing.Order.OCAGroup
	existing.Order = order
	if existing.Held {
		m.mu.Unlock()
		return order.OrderID, nil
	}
	m.mu.Unlock()
	order.Transmit = true
	if err := m.sender.SendPlaceOrder(order); err != nil {
		return 0, errors.Wrapf(err, "modify order %d", order.OrderID)
	}
	return order.OrderID, nil
}

// removeLocalLocked drops a held order and its held children without
// network calls.
func (m *Manager) removeLocalLocked(tracked *Tracked) {
	for _, cid := range tracked.Children {
		if child, ok := m.orders[cid]; ok && child.Held {
			delete(m.orders, cid)
		}
	}
	if tracked.Order.OCAGroup != "" {
		delete(m.oca, tracked.Order.OCAGroup)
	}
	delete(m.orders, tracked.Order.OrderID)
}
