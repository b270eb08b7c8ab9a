package proof

import (
	"bytes"
	"encoding/binary"
	"slices"
	"time"
)

// encoder writes length-delimited fields so distinct field sequences can
// never produce the same byte string.
type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) bytes(b []byte) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	e.buf.Write(l[:])
	e.buf.Write(b)
}

func (e *encoder) str(s string) { e.bytes([]byte(s)) }

func (e *encoder) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) i64(v int64) { e.u64(uint64(v)) }

func (e *encoder) time(t time.Time) {
	e.i64(t.Unix())
	e.u64(uint64(t.Nanosecond()))
}

func (e *encoder) bool(b bool) {
	if b {
		e.buf.WriteByte(1)
		return
	}
	e.buf.WriteByte(0)
}

func (e *encoder) claims(c Claims) {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	e.u64(uint64(len(keys)))
	for _, k := range keys {
		e.str(k)
		e.str(c[k])
	}
}
