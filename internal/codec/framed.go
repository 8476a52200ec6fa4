// Package codec implements the length-prefixed framing used on the native
// messaging pipe between the bridge daemon and the browser extension: each
// message is a 32-bit native-endian unsigned length followed by that many
// bytes of UTF-8 JSON.
package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// MaxFrameSize is the largest inbound frame the codec accepts. The extension
// splits large payloads (screenshots, network bodies) into follow-up calls
// or cached handles rather than exceeding this.
const MaxFrameSize = 1 << 20 // 1 MiB

// ErrFrameTooLarge is returned by ReadMessage when the declared length
// exceeds MaxFrameSize.
var ErrFrameTooLarge = fmt.Errorf("codec: frame exceeds %d bytes", MaxFrameSize)

// ErrPartialFrame is returned by ReadMessage when the stream ends after a
// length prefix but before the full payload arrives.
var ErrPartialFrame = fmt.Errorf("codec: partial frame")

// Writer serializes framed writes to an underlying stream so that the
// length prefix and payload of one message are never interleaved with
// another writer's bytes.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w (typically the process's stdout) for framed writes.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteMessage writes one length-prefixed frame atomically with respect to
// other goroutines calling WriteMessage on the same Writer.
func (fw *Writer) WriteMessage(payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	var lenBuf [4]byte
	binary.NativeEndian.PutUint32(lenBuf[:], uint32(len(payload)))

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if _, err := fw.w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("codec: write length prefix: %w", err)
	}
	if _, err := fw.w.Write(payload); err != nil {
		return fmt.Errorf("codec: write payload: %w", err)
	}
	return nil
}

// Reader reads framed messages from an underlying byte stream (treated as a
// raw byte stream, never line-buffered — a frame's payload may itself
// contain newlines).
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r (typically the process's stdin) for framed reads.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024)}
}

// ReadMessage blocks until a full frame is available. It returns io.EOF on a
// clean pipe close between frames, and ErrPartialFrame (wrapping io.ErrUnexpectedEOF)
// if the stream closes mid-frame.
func (fr *Reader) ReadMessage() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(fr.r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %w", ErrPartialFrame, err)
	}
	n := binary.NativeEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPartialFrame, err)
	}
	return payload, nil
}
