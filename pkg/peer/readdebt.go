package peer

import (
    "fmt"
    "io"
    "sync"

    "go.uber.org/zap"
)

// ReadDebt bridges a message source to a byte-stream reader. Bytes of a
// message that did not fit into the caller's buffer are kept as debt and
// handed out by following reads, never mixed with bytes of another message.
type ReadDebt struct {
    pending []byte
    policy  DebtHandling
}

func NewReadDebt(policy DebtHandling) *ReadDebt { return &ReadDebt{policy: policy} }

// Pending is the number of undelivered bytes.
func (d *ReadDebt) Pending() int { return len(d.pending) }

// Drain copies outstanding debt into buf. ok is false when there was no debt.
func (d *ReadDebt) Drain(buf []byte) (n int, ok bool) {
    if len(d.pending) == 0 { return 0, false }
    n = copy(buf, d.pending)
    d.pending = d.pending[n:]
    if len(d.pending) == 0 { d.pending = nil }
    return n, true
}

// Process delivers msg into buf. drop reports that the message was discarded
// and the caller should fetch the next one. Callers pull a new message only
// after Drain reports no debt, so a message never queues behind another.
func (d *ReadDebt) Process(buf, msg []byte) (n int, drop bool, err error) {
    if len(msg) <= len(buf) {
        return copy(buf, msg), false, nil
    }
    switch d.policy {
    case DebtError:
        return 0, false, Framing("read", errorTooLong(len(msg), len(buf)))
    case DebtDrop:
        zap.L().Warn("incoming message too long, dropping it", zap.Int("size", len(msg)), zap.Int("buffer", len(buf)))
        return 0, true, nil
    case DebtWarn:
        zap.L().Warn("incoming message too long, splitting it; raise the buffer size to avoid this", zap.Int("size", len(msg)), zap.Int("buffer", len(buf)))
    }
    n = copy(buf, msg)
    d.pending = append([]byte(nil), msg[n:]...)
    return n, false, nil
}

func errorTooLong(size, buffer int) error {
    return fmt.Errorf("incoming message of %d bytes does not fit a %d byte read", size, buffer)
}

// MessageReader turns a function returning one message per call into an
// io.ReadCloser using ReadDebt. After a framing violation every Read fails.
type MessageReader struct {
    mu     sync.Mutex
    next   func() ([]byte, error)
    closer func() error
    debt   *ReadDebt
    err    error
}

func NewMessageReader(next func() ([]byte, error), closer func() error, policy DebtHandling) *MessageReader {
    return &MessageReader{next: next, closer: closer, debt: NewReadDebt(policy)}
}

func (m *MessageReader) Read(p []byte) (int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if len(p) == 0 { return 0, nil }
    if n, ok := m.debt.Drain(p); ok { return n, nil }
    if m.err != nil { return 0, m.err }
    for {
        msg, err := m.next()
        if err != nil {
            if len(msg) == 0 { return 0, err }
            m.err = err
        }
        n, drop, perr := m.debt.Process(p, msg)
        if perr != nil { m.err = perr; return 0, perr }
        if drop {
            if m.err != nil { return 0, m.err }
            continue
        }
        if n == 0 && len(msg) == 0 && m.err == nil {
            // empty messages carry nothing for a stream consumer
            continue
        }
        return n, nil
    }
}

func (m *MessageReader) Close() error {
    if m.closer == nil { return nil }
    return m.closer()
}

var _ io.ReadCloser = (*MessageReader)(nil)
