package framing

import (
	"bufio"
	"io"
)

const readChunkSize = 4096

// Reader reads frames from an io.Reader.
type Reader struct {
	r       io.Reader
	dec     *Decoder
	chunk   []byte
	pending [][]byte
	err     error
}

// NewReader creates a Reader. maxFrameSize <= 0 selects DefaultMaxFrameSize.
func NewReader(r io.Reader, maxFrameSize int) *Reader {
	return &Reader{
		r:     r,
		dec:   NewDecoder(maxFrameSize),
		chunk: make([]byte, readChunkSize),
	}
}

// ReadFrame returns the next complete frame payload. Frames already decoded
// are handed out before a read or framing error is reported. A clean end of
// stream between frames returns io.EOF.
func (r *Reader) ReadFrame() ([]byte, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return nil, r.err
		}

		n, err := r.r.Read(r.chunk)
		if n > 0 {
			frames, ferr := r.dec.Feed(r.chunk[:n])
			r.pending = append(r.pending, frames...)
			if ferr != nil {
				r.err = ferr
				continue
			}
		}
		if err != nil {
			if err == io.EOF {
				if ferr := r.dec.Flush(); ferr != nil {
					err = ferr
				}
			}
			r.err = err
		}
	}

	frame := r.pending[0]
	r.pending[0] = nil
	r.pending = r.pending[1:]
	return frame, nil
}

// Writer writes frames to a buffered io.Writer. Frames are not sent until
// Flush is called or the buffer fills.
type Writer struct {
	bw      *bufio.Writer
	scratch []byte
}

// NewWriter creates a Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// WriteFrame stuffs payload and buffers it.
func (w *Writer) WriteFrame(payload []byte) error {
	w.scratch = AppendFrame(w.scratch[:0], payload)
	_, err := w.bw.Write(w.scratch)
	return err
}

// Flush writes any buffered frames to the underlying writer.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

// Buffered returns the number of bytes waiting for Flush.
func (w *Writer) Buffered() int {
	return w.bw.Buffered()
}
