package codec

import (
	"encoding/binary"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"twsgo/pkg/exception"
)

// writer accumulates NUL-terminated ASCII fields and frames them with a
// 4-byte big-endian length prefix.
type writer struct {
	buf []byte
}

func newWriter(msgID int) *writer {
	w := &writer{buf: make([]byte, 0, 128)}
	w.addInt(int64(msgID))
	return w
}

func (w *writer) addStr(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

func (w *writer) addInt(v int64) {
	w.buf = strconv.AppendInt(w.buf, v, 10)
	w.buf = append(w.buf, 0)
}

func (w *writer) addDecimal(d decimal.Decimal) {
	w.addStr(d.String())
}

func (w *writer) addBool(b bool) {
	if b {
		w.addStr("1")
	} else {
		w.addStr("0")
	}
}

// frame prepends the length prefix and returns the finished wire bytes.
func (w *writer) frame() []byte {
	out := make([]byte, 4+len(w.buf))
	binary.BigEndian.PutUint32(out[:4], uint32(len(w.buf)))
	copy(out[4:], w.buf)
	return out
}

// Frame wraps an already-encoded payload with the length prefix. Used by
// the handshake, whose payload carries no message id.
func Frame(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out[:4], uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

// reader walks the NUL-separated fields of one frame payload. The first
// parse error sticks; callers check Err once after reading.
type reader struct {
	fields [][]byte
	pos    int
	err    error
}

func newReader(payload []byte) *reader {
	r := &reader{}
	start := 0
	for i := 0; i < len(payload); i++ {
		if payload[i] == 0 {
			r.fields = append(r.fields, payload[start:i])
			start = i + 1
		}
	}
	// tolerate a missing trailing NUL on the last field
	if start < len(payload) {
		r.fields = append(r.fields, payload[start:])
	}
	return r
}

func (r *reader) next() []byte {
	if r.err != nil {
		return nil
	}
	if r.pos >= len(r.fields) {
		r.err = errors.Wrap(exception.ErrMalformedFrame, "truncated field list")
		return nil
	}
	f := r.fields[r.pos]
	r.pos++
	return f
}

func (r *reader) str() string {
	return string(r.next())
}

func (r *reader) int64() int64 {
	f := r.next()
	if r.err != nil {
		return 0
	}
	if len(f) == 0 {
		return 0
	}
	v, err := strconv.ParseInt(string(f), 10, 64)
	if err != nil {
		r.err = errors.Wrapf(exception.ErrMalformedFrame, "bad int field %q", f)
		return 0
	}
	return v
}

func (r *reader) decimal() decimal.Decimal {
	f := r.next()
	if r.err != nil {
		return decimal.Zero
	}
	if len(f) == 0 {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(string(f))
	if err != nil {
		r.err = errors.Wrapf(exception.ErrMalformedFrame, "bad decimal field %q", f)
		return decimal.Zero
	}
	return d
}

func (r *reader) Err() error {
	return r.err
}
