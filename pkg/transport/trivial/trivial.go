// Package trivial holds self-contained specifiers that need no I/O resource.
package trivial

import (
    "context"
    "io"
    "strings"
    "sync"

    "github.com/jw3/websocat/pkg/peer"
)

var Mirror = &peer.Class{
    Name:         "mirror",
    Prefixes:     []string{"mirror:"},
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.SingleConnect,
    Help:         "Echo back everything written.\n\nExample: websocat ws-l:127.0.0.1:8000 mirror:",
    Construct:    func(*peer.Node, peer.ConstructParams) peer.Constructor { return peer.Once(mirror) },
}

var Literal = &peer.Class{
    Name:         "literal",
    Prefixes:     []string{"literal:"},
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.SingleConnect,
    Help:         "Read the argument text, then end of data. Writes are discarded.\n\nExample: websocat ws-l:127.0.0.1:8000 literal:Hello",
    Construct:    literal,
}

var LiteralReply = &peer.Class{
    Name:         "literalreply",
    Prefixes:     []string{"literalreply:"},
    Boundary:     peer.MessageOriented,
    Multiconnect: peer.SingleConnect,
    Help:         "Answer every incoming write with the argument text.\n\nExample: websocat ws-l:127.0.0.1:8000 literalreply:pong",
    Construct:    literalReply,
}

var Clogged = &peer.Class{
    Name:         "clogged",
    Prefixes:     []string{"clogged:"},
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.SingleConnect,
    Help:         "Never reads nor writes anything; blocks until closed.",
    Construct:    func(*peer.Node, peer.ConstructParams) peer.Constructor { return peer.Once(clogged) },
}

func mirror(context.Context) (*peer.Peer, error) {
    r, w := io.Pipe()
    return peer.New(r, w), nil
}

func literal(n *peer.Node, _ peer.ConstructParams) peer.Constructor {
    text := n.Arg
    return peer.Once(func(context.Context) (*peer.Peer, error) {
        return peer.New(peer.NopReadCloser(strings.NewReader(text)), peer.Discard()), nil
    })
}

func literalReply(n *peer.Node, cp peer.ConstructParams) peer.Constructor {
    reply, policy := n.Arg, cp.Opts().ReadDebtHandling
    return peer.Once(func(context.Context) (*peer.Peer, error) {
        q := &replies{ch: make(chan []byte, 16), done: make(chan struct{})}
        return peer.New(peer.NewMessageReader(q.next, q.stop, policy), &replyWriter{q: q, reply: []byte(reply)}), nil
    })
}

// replies is a queue of pending answers.
type replies struct {
    ch       chan []byte
    done     chan struct{}
    stopOnce sync.Once
}

func (q *replies) next() ([]byte, error) {
    select {
    case m, ok := <-q.ch:
        if !ok { return nil, io.EOF }
        return m, nil
    case <-q.done:
        return nil, io.EOF
    }
}

func (q *replies) stop() error { q.stopOnce.Do(func() { close(q.done) }); return nil }

type replyWriter struct {
    q     *replies
    reply []byte
    mu    sync.Mutex
    ended bool
}

func (w *replyWriter) Write(b []byte) (int, error) {
    w.mu.Lock(); defer w.mu.Unlock()
    if w.ended { return 0, io.ErrClosedPipe }
    select {
    case w.q.ch <- w.reply:
        return len(b), nil
    case <-w.q.done:
        return 0, io.ErrClosedPipe
    }
}

// Close ends the reply stream once queued replies are read.
func (w *replyWriter) Close() error {
    w.mu.Lock(); defer w.mu.Unlock()
    if !w.ended { w.ended = true; close(w.q.ch) }
    return nil
}

func clogged(context.Context) (*peer.Peer, error) {
    c := &clog{done: make(chan struct{})}
    return peer.Split(c, c, peer.NewHalves(nil, nil, c.close)), nil
}

type clog struct {
    done chan struct{}
    once sync.Once
}

func (c *clog) Read([]byte) (int, error)  { <-c.done; return 0, io.EOF }
func (c *clog) Write([]byte) (int, error) { <-c.done; return 0, io.ErrClosedPipe }
func (c *clog) close() error              { c.once.Do(func() { close(c.done) }); return nil }
