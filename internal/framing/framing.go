// Package framing recovers discrete frames from a raw byte stream.
//
// On the wire a frame is its payload with every Delim or Esc byte prefixed by
// Esc, followed by one unescaped Delim:
//
//	<payload, Esc-stuffed> Delim
package framing

import (
	"errors"
	"fmt"
	"io"
)

// Reserved bytes.
const (
	Delim byte = 0x7E
	Esc   byte = 0x7D
)

// DefaultMaxFrameSize bounds the unescaped size of a single frame.
const DefaultMaxFrameSize = 64 * 1024

// ErrFraming is matched by every FramingError.
var ErrFraming = errors.New("framing: malformed byte stream")

// FramingError reports a malformed byte stream. It is fatal to the
// connection that produced it.
type FramingError struct {
	Reason string
	Offset int64 // stream offset of the offending byte
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing: %s (offset %d)", e.Reason, e.Offset)
}

func (e *FramingError) Unwrap() error {
	return ErrFraming
}

// AppendFrame appends the stuffed and delimited form of payload to dst.
func AppendFrame(dst, payload []byte) []byte {
	for _, b := range payload {
		if b == Delim || b == Esc {
			dst = append(dst, Esc)
		}
		dst = append(dst, b)
	}
	return append(dst, Delim)
}

// Encode returns the wire form of payload.
func Encode(payload []byte) []byte {
	return AppendFrame(make([]byte, 0, len(payload)+len(payload)/8+1), payload)
}

// Decoder turns stuffed bytes back into frames. It keeps its state between
// calls, so input may be split at any byte boundary.
type Decoder struct {
	max     int
	buf     []byte
	escaped bool
	offset  int64
	err     error
}

// NewDecoder creates a Decoder. maxFrameSize <= 0 selects DefaultMaxFrameSize.
func NewDecoder(maxFrameSize int) *Decoder {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Decoder{max: maxFrameSize}
}

// Feed consumes p and returns every frame it completes. Frames completed
// before a framing error are returned together with the error; once an error
// is returned the decoder is broken and keeps returning it.
func (d *Decoder) Feed(p []byte) ([][]byte, error) {
	if d.err != nil {
		return nil, d.err
	}

	var frames [][]byte
	for _, b := range p {
		d.offset++

		if d.escaped {
			d.escaped = false
			if b != Delim && b != Esc {
				return frames, d.fail(fmt.Sprintf("invalid escape sequence 0x%02x 0x%02x", Esc, b))
			}
			if err := d.push(b); err != nil {
				return frames, err
			}
			continue
		}

		switch b {
		case Esc:
			d.escaped = true
		case Delim:
			// Back-to-back delimiters carry nothing.
			if len(d.buf) > 0 {
				frames = append(frames, d.take())
			}
		default:
			if err := d.push(b); err != nil {
				return frames, err
			}
		}
	}
	return frames, nil
}

// Flush reports the state at end of stream. An escape byte with nothing
// after it is a FramingError; an unterminated frame is io.ErrUnexpectedEOF.
func (d *Decoder) Flush() error {
	if d.err != nil {
		return d.err
	}
	switch {
	case d.escaped:
		return d.fail("escape byte at end of stream")
	case len(d.buf) > 0:
		d.err = io.ErrUnexpectedEOF
		return d.err
	}
	return nil
}

// Buffered returns the number of unescaped bytes of the current partial frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) push(b byte) error {
	if len(d.buf) >= d.max {
		return d.fail(fmt.Sprintf("frame exceeds %d bytes", d.max))
	}
	d.buf = append(d.buf, b)
	return nil
}

func (d *Decoder) take() []byte {
	frame := make([]byte, len(d.buf))
	copy(frame, d.buf)
	d.buf = d.buf[:0]
	return frame
}

func (d *Decoder) fail(reason string) error {
	d.err = &FramingError{Reason: reason, Offset: d.offset - 1}
	d.buf = nil
	return d.err
}
