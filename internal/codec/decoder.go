package codec

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/yanun0323/errors"

	"twsgo/internal/schema"
	"twsgo/pkg/exception"
)

// Decoder turns a byte stream into events incrementally. Feed appends raw
// bytes; Next yields one event per complete frame and returns (nil, nil)
// while the buffer holds only a partial frame. The decoder carries no state
// beyond the partial-input buffer.
type Decoder struct {
	buf []byte
	now func() time.Time
}

// NewDecoder creates a stream decoder.
func NewDecoder() *Decoder {
	return &Decoder{now: time.Now}
}

// Feed appends raw bytes from the transport.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Reset drops buffered partial input. Called on reconnect so a torn frame
// from the old session cannot corrupt the new one.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}

// Next decodes the next complete frame. It returns (nil, nil) when more
// bytes are needed. A malformed or unknown frame is consumed and reported
// as an error; decoding resumes at the following frame.
func (d *Decoder) Next() (schema.Event, error) {
	if len(d.buf) < 4 {
		return nil, nil
	}
	size := binary.BigEndian.Uint32(d.buf[:4])
	if size > MaxFrameSize {
		d.buf = d.buf[:0]
		return nil, errors.Wrapf(exception.ErrFrameTooLarge, "announced %d bytes", size)
	}
	if len(d.buf) < 4+int(size) {
		return nil, nil
	}
	payload := d.buf[4 : 4+size]
	ev, err := d.decodePayload(payload)
	d.buf = d.buf[4+size:]
	return ev, err
}

// DecodeHandshakeAck parses the server's handshake reply and returns the
// negotiated server version and connection time field.
func DecodeHandshakeAck(payload []byte) (int, string, error) {
	r := newReader(payload)
	version := r.int64()
	connTime := r.str()
	if err := r.Err(); err != nil {
		return 0, "", err
	}
	if version < MinServerVersion {
		return int(version), connTime, exception.ErrVersionMismatch
	}
	return int(version), connTime, nil
}

func (d *Decoder) decodePayload(payload []byte) (schema.Event, error) {
	r := newReader(payload)
	msgID := r.int64()
	if err := r.Err(); err != nil {
		return nil, err
	}
	switch msgID {
	case msgTickPrice:
		return d.decodeTickPrice(r)
	case msgTickSize:
		return d.decodeTickSize(r)
	case msgOrderStatus:
		return decodeOrderStatus(r)
	case msgErrMsg:
		return decodeErrMsg(r)
	case msgNextValidID:
		return decodeNextValidID(r)
	case msgExecutionData:
		return decodeExecDetails(r)
	case msgManagedAccts:
		return decodeManagedAccounts(r)
	case msgCurrentTime:
		return decodeCurrentTime(r)
	default:
		return nil, errors.Wrapf(exception.ErrUnknownMessage, "id %d", msgID)
	}
}

func (d *Decoder) decodeTickPrice(r *reader) (schema.Event, error) {
	_ = r.int64() // message version
	ev := schema.TickPrice{
		ID:       schema.RequestID(r.int64()),
		Tick:     schema.TickType(r.int64()),
		Price:    r.decimal(),
		Size:     r.decimal(),
		Received: d.now(),
	}
	return ev, r.Err()
}

func (d *Decoder) decodeTickSize(r *reader) (schema.Event, error) {
	_ = r.int64()
	ev := schema.TickSize{
		ID:       schema.RequestID(r.int64()),
		Tick:     schema.TickType(r.int64()),
		Size:     r.decimal(),
		Received: d.now(),
	}
	return ev, r.Err()
}

func decodeOrderStatus(r *reader) (schema.Event, error) {
	_ = r.int64()
	ev := schema.OrderStatus{
		OrderID:       schema.OrderID(r.int64()),
		Status:        schema.ParseOrderState(r.str()),
		Filled:        r.decimal(),
		Remaining:     r.decimal(),
		AvgFillPrice:  r.decimal(),
		ParentID:      schema.OrderID(r.int64()),
		LastFillPrice: r.decimal(),
		WhyHeld:       r.str(),
	}
	return ev, r.Err()
}

func decodeErrMsg(r *reader) (schema.Event, error) {
	_ = r.int64()
	ev := schema.ErrMsg{
		ID:   schema.RequestID(r.int64()),
		Code: int(r.int64()),
		Msg:  r.str(),
	}
	return ev, r.Err()
}

func decodeNextValidID(r *reader) (schema.Event, error) {
	_ = r.int64()
	ev := schema.NextValidID{ID: schema.OrderID(r.int64())}
	return ev, r.Err()
}

func decodeExecDetails(r *reader) (schema.Event, error) {
	_ = r.int64()
	ev := schema.ExecDetails{
		ID:       schema.RequestID(r.int64()),
		OrderID:  schema.OrderID(r.int64()),
		ExecID:   r.str(),
		Time:     time.Unix(r.int64(), 0),
		Side:     r.str(),
		Shares:   r.decimal(),
		Price:    r.decimal(),
		CumQty:   r.decimal(),
		AvgPrice: r.decimal(),
	}
	return ev, r.Err()
}

func decodeManagedAccounts(r *reader) (schema.Event, error) {
	_ = r.int64()
	raw := r.str()
	if err := r.Err(); err != nil {
		return nil, err
	}
	var accounts []string
	for _, a := range strings.Split(raw, ",") {
		if a != "" {
			accounts = append(accounts, a)
		}
	}
	return schema.ManagedAccounts{Accounts: accounts}, nil
}

func decodeCurrentTime(r *reader) (schema.Event, error) {
	_ = r.int64()
	ev := schema.CurrentTime{Time: time.Unix(r.int64(), 0)}
	return ev, r.Err()
}
