// Package line converts between line-delimited byte streams and messages.
//
// line2msg wraps a stream-oriented node: each line read becomes one message
// and each message written becomes one line. msg2line is the inverse and
// wraps a message-oriented node.
package line

import (
    "bufio"
    "bytes"
    "context"
    "io"
    "sync"

    "github.com/jw3/websocat/pkg/peer"
)

var ToMessages = &peer.Class{
    Name:         "line2msg",
    Prefixes:     []string{"line2msg:"},
    Overlay:      true,
    Boundary:     peer.MessageOriented,
    Multiconnect: peer.InheritMulticonnect,
    Help:         "Deliver each line of the inner stream as one message; write each message as one line.",
    Construct:    func(n *peer.Node, cp peer.ConstructParams) peer.Constructor { return n.ConstructInner(cp, toMessages(cp.Opts())) },
}

var ToLines = &peer.Class{
    Name:         "msg2line",
    Prefixes:     []string{"msg2line:"},
    Overlay:      true,
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.InheritMulticonnect,
    Help:         "Turn each inner message into one line; send each written line as one message.",
    Construct:    func(n *peer.Node, cp peer.ConstructParams) peer.Constructor { return n.ConstructInner(cp, toLines(cp.Opts())) },
}

// format is the line convention of a run. In strict mode incomplete lines
// are dropped, and so are messages too long for one read.
type format struct {
    sep    byte
    strip  bool
    strict bool
    policy peer.DebtHandling
}

func formatOf(o *peer.Options) format {
    f := format{sep: '\n', strip: o.LinemodeStripNewlines, strict: o.LinemodeStrict, policy: o.ReadDebtHandling}
    if o.LinemodeZeroTerminated { f.sep = 0 }
    if f.strict { f.policy = peer.DebtDrop }
    return f
}

// line renders msg as exactly one terminated line.
func (f format) line(msg []byte) []byte {
    msg = bytes.TrimSuffix(msg, []byte{f.sep})
    if f.sep == '\n' { msg = bytes.TrimSuffix(msg, []byte{'\r'}) }
    out := make([]byte, 0, len(msg)+1)
    for _, b := range msg {
        if b == f.sep { b = ' ' }
        out = append(out, b)
    }
    return append(out, f.sep)
}

// message renders a complete line (terminator included) as a message.
func (f format) message(line []byte) []byte {
    if !f.strip { return line }
    line = bytes.TrimSuffix(line, []byte{f.sep})
    if f.sep == '\n' { line = bytes.TrimSuffix(line, []byte{'\r'}) }
    return line
}

func toMessages(o *peer.Options) peer.Overlay {
    f := formatOf(o)
    return func(_ context.Context, p *peer.Peer) (*peer.Peer, error) {
        br := bufio.NewReaderSize(p.R, o.BufferSize)
        next := func() ([]byte, error) {
            l, err := br.ReadBytes(f.sep)
            if len(l) > 0 && l[len(l)-1] == f.sep { return f.message(l), err }
            if f.strict { return nil, err }
            return l, err
        }
        return peer.New(peer.NewMessageReader(next, p.R.Close, f.policy), &lineWriter{w: p.W, f: f}), nil
    }
}

func toLines(o *peer.Options) peer.Overlay {
    f, size := formatOf(o), o.BufferSize
    return func(_ context.Context, p *peer.Peer) (*peer.Peer, error) {
        buf := make([]byte, size)
        next := func() ([]byte, error) {
            n, err := p.R.Read(buf)
            if n == 0 { return nil, err }
            return f.line(buf[:n]), err
        }
        return peer.New(peer.NewMessageReader(next, p.R.Close, f.policy), &messageWriter{w: p.W, f: f}), nil
    }
}

// lineWriter writes every message as one line.
type lineWriter struct {
    w io.WriteCloser
    f format
}

func (l *lineWriter) Write(b []byte) (int, error) {
    if _, err := l.w.Write(l.f.line(b)); err != nil { return 0, err }
    return len(b), nil
}

func (l *lineWriter) Close() error { return l.w.Close() }

// messageWriter buffers a byte stream and writes each complete line as one
// message. A trailing partial line is flushed on Close unless strict.
type messageWriter struct {
    mu      sync.Mutex
    w       io.WriteCloser
    f       format
    partial []byte
}

func (m *messageWriter) Write(b []byte) (int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    m.partial = append(m.partial, b...)
    for {
        i := bytes.IndexByte(m.partial, m.f.sep)
        if i < 0 { break }
        line := m.partial[:i+1]
        if _, err := m.w.Write(m.f.message(line)); err != nil { return 0, err }
        m.partial = m.partial[i+1:]
    }
    if len(m.partial) == 0 { m.partial = nil }
    return len(b), nil
}

func (m *messageWriter) Close() error {
    m.mu.Lock(); defer m.mu.Unlock()
    if len(m.partial) > 0 && !m.f.strict {
        rest := m.partial
        m.partial = nil
        if _, err := m.w.Write(rest); err != nil { _ = m.w.Close(); return err }
    }
    return m.w.Close()
}
