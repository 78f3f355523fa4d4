package codec

import (
	"twsgo/internal/schema"
)

// Gateway-side encoders. Production clients never send these; they exist
// for the simulated gateway and for codec round-trip tests.

// EncodeHandshakeAck builds the server handshake reply.
func EncodeHandshakeAck(serverVersion int, connTime string) []byte {
	w := &writer{buf: make([]byte, 0, 32)}
	w.addInt(int64(serverVersion))
	w.addStr(connTime)
	return Frame(w.buf)
}

// EncodeTickPrice serializes a price tick event.
func EncodeTickPrice(ev schema.TickPrice) []byte {
	w := newWriter(msgTickPrice)
	w.addInt(6)
	w.addInt(int64(ev.ID))
	w.addInt(int64(ev.Tick))
	w.addDecimal(ev.Price)
	w.addDecimal(ev.Size)
	return w.frame()
}

// EncodeTickSize serializes a size tick event.
func EncodeTickSize(ev schema.TickSize) []byte {
	w := newWriter(msgTickSize)
	w.addInt(6)
	w.addInt(int64(ev.ID))
	w.addInt(int64(ev.Tick))
	w.addDecimal(ev.Size)
	return w.frame()
}

// EncodeOrderStatus serializes an order status event.
func EncodeOrderStatus(ev schema.OrderStatus) []byte {
	w := newWriter(msgOrderStatus)
	w.addInt(9)
	w.addInt(int64(ev.OrderID))
	w.addStr(ev.Status.String())
	w.addDecimal(ev.Filled)
	w.addDecimal(ev.Remaining)
	w.addDecimal(ev.AvgFillPrice)
	w.addInt(int64(ev.ParentID))
	w.addDecimal(ev.LastFillPrice)
	w.addStr(ev.WhyHeld)
	return w.frame()
}

// EncodeErrMsg serializes an error/notice event.
func EncodeErrMsg(ev schema.ErrMsg) []byte {
	w := newWriter(msgErrMsg)
	w.addInt(2)
	w.addInt(int64(ev.ID))
	w.addInt(int64(ev.Code))
	w.addStr(ev.Msg)
	return w.frame()
}

// EncodeNextValidID serializes the next valid order id announcement.
func EncodeNextValidID(ev schema.NextValidID) []byte {
	w := newWriter(msgNextValidID)
	w.addInt(1)
	w.addInt(int64(ev.ID))
	return w.frame()
}

// EncodeExecDetails serializes an execution report.
func EncodeExecDetails(ev schema.ExecDetails) []byte {
	w := newWriter(msgExecutionData)
	w.addInt(10)
	w.addInt(int64(ev.ID))
	w.addInt(int64(ev.OrderID))
	w.addStr(ev.ExecID)
	w.addInt(ev.Time.Unix())
	w.addStr(ev.Side)
	w.addDecimal(ev.Shares)
	w.addDecimal(ev.Price)
	w.addDecimal(ev.CumQty)
	w.addDecimal(ev.AvgPrice)
	return w.frame()
}

// EncodeManagedAccounts serializes the managed accounts list.
func EncodeManagedAccounts(ev schema.ManagedAccounts) []byte {
	w := newWriter(msgManagedAccts)
	w.addInt(1)
	joined := ""
	for i, a := range ev.Accounts {
		if i > 0 {
			joined += ","
		}
		joined += a
	}
	w.addStr(joined)
	return w.frame()
}

// EncodeCurrentTime serializes a server time reply.
func EncodeCurrentTime(ev schema.CurrentTime) []byte {
	w := newWriter(msgCurrentTime)
	w.addInt(1)
	w.addInt(ev.Time.Unix())
	return w.frame()
}
