package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// MaxTextLen is the largest encodable text field, in bytes.
const MaxTextLen = math.MaxUint16

// Field encoding is big-endian and fixed width. Text is a uint16 byte length
// followed by UTF-8 bytes.

func AppendUint16(b []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(b, v)
}

func AppendUint32(b []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(b, v)
}

func AppendFloat32(b []byte, v float32) []byte {
	return binary.BigEndian.AppendUint32(b, math.Float32bits(v))
}

func AppendText(b []byte, s string) ([]byte, error) {
	if len(s) > MaxTextLen {
		return b, fmt.Errorf("%w: %d bytes", ErrTextTooLong, len(s))
	}
	b = AppendUint16(b, uint16(len(s)))
	return append(b, s...), nil
}

// FieldReader reads fixed-width fields in order. The first short read sticks;
// check it once with Finish.
type FieldReader struct {
	b   []byte
	err error
}

func NewFieldReader(b []byte) *FieldReader {
	return &FieldReader{b: b}
}

func (r *FieldReader) next(n int, field string) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b) < n {
		r.err = fmt.Errorf("%w: %s needs %d bytes, %d left", ErrMalformedPayload, field, n, len(r.b))
		return nil
	}
	v := r.b[:n]
	r.b = r.b[n:]
	return v
}

func (r *FieldReader) Uint16() uint16 {
	if v := r.next(2, "uint16"); v != nil {
		return binary.BigEndian.Uint16(v)
	}
	return 0
}

func (r *FieldReader) Uint32() uint32 {
	if v := r.next(4, "uint32"); v != nil {
		return binary.BigEndian.Uint32(v)
	}
	return 0
}

func (r *FieldReader) Float32() float32 {
	return math.Float32frombits(r.Uint32())
}

func (r *FieldReader) Text() string {
	n := int(r.Uint16())
	v := r.next(n, "text")
	if v == nil {
		return ""
	}
	if !utf8.Valid(v) {
		r.err = fmt.Errorf("%w: text is not valid UTF-8", ErrMalformedPayload)
		return ""
	}
	return string(v)
}

// Rest consumes and returns every remaining byte.
func (r *FieldReader) Rest() []byte {
	if r.err != nil {
		return nil
	}
	v := r.b
	r.b = nil
	return v
}

// Finish returns the first read error, or an error if bytes are left over.
func (r *FieldReader) Finish() error {
	if r.err != nil {
		return r.err
	}
	if len(r.b) > 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformedPayload, len(r.b))
	}
	return nil
}
