package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Body accumulator errors.
var (
	// ErrBodyTooLarge is returned by Append once the limit would be exceeded.
	ErrBodyTooLarge = errors.New("request body too large")
	// ErrAborted is returned when the transport failed before the body completed.
	ErrAborted = errors.New("request body aborted")
	// ErrBodyState is returned for an operation the current state does not allow.
	ErrBodyState = errors.New("invalid body accumulator state")
)

type bodyState int

const (
	stateReceiving bodyState = iota
	stateComplete
	stateDispatched
	stateAborted
)

func (s bodyState) String() string {
	switch s {
	case stateReceiving:
		return "receiving"
	case stateComplete:
		return "complete"
	case stateDispatched:
		return "dispatched"
	case stateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("bodyState(%d)", int(s))
	}
}

// readChunkSize is the buffer used by ReadFrom.
const readChunkSize = 32 * 1024

// BodyAccumulator assembles one request body. It moves from receiving to
// complete to dispatched, or from receiving to aborted. Done is closed
// exactly once, when the body completes; an aborted body never completes.
type BodyAccumulator struct {
	mu    sync.Mutex
	state bodyState
	buf   bytes.Buffer
	limit int64
	done  chan struct{}
}

// NewBodyAccumulator creates an accumulator. A limit <= 0 means unbounded.
func NewBodyAccumulator(limit int64) *BodyAccumulator {
	return &BodyAccumulator{
		limit: limit,
		done:  make(chan struct{}),
	}
}

// Append adds a chunk. Exceeding the limit aborts the body and returns
// ErrBodyTooLarge.
func (b *BodyAccumulator) Append(chunk []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != stateReceiving {
		return fmt.Errorf("%w: append while %s", ErrBodyState, b.state)
	}
	if b.limit > 0 && int64(b.buf.Len())+int64(len(chunk)) > b.limit {
		b.abortLocked()
		return ErrBodyTooLarge
	}
	b.buf.Write(chunk)
	return nil
}

// Complete marks the body as fully received and closes Done. It reports
// whether this call did the transition; later calls are no-ops.
func (b *BodyAccumulator) Complete() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != stateReceiving {
		return false
	}
	b.state = stateComplete
	close(b.done)
	return true
}

// Abort discards the body. Done is never closed afterwards.
func (b *BodyAccumulator) Abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateReceiving {
		b.abortLocked()
	}
}

func (b *BodyAccumulator) abortLocked() {
	b.state = stateAborted
	b.buf = bytes.Buffer{}
}

// Done is closed when the body completes.
func (b *BodyAccumulator) Done() <-chan struct{} {
	return b.done
}

// Aborted reports whether the body was aborted.
func (b *BodyAccumulator) Aborted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateAborted
}

// Take hands the completed body to dispatch. It succeeds once.
func (b *BodyAccumulator) Take() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != stateComplete {
		return nil, fmt.Errorf("%w: take while %s", ErrBodyState, b.state)
	}
	b.state = stateDispatched
	body := b.buf.Bytes()
	b.buf = bytes.Buffer{}
	if body == nil {
		body = []byte{}
	}
	return body, nil
}

// ReadFrom appends everything r yields. io.EOF completes the body; any
// other read error aborts it and is returned wrapped in ErrAborted.
func (b *BodyAccumulator) ReadFrom(r io.Reader) (int64, error) {
	var n int64
	chunk := make([]byte, readChunkSize)
	for {
		m, err := r.Read(chunk)
		if m > 0 {
			if appendErr := b.Append(chunk[:m]); appendErr != nil {
				return n, appendErr
			}
			n += int64(m)
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			b.Complete()
			return n, nil
		default:
			b.Abort()
			return n, fmt.Errorf("%w: %v", ErrAborted, err)
		}
	}
}
