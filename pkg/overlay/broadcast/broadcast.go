// Package broadcast fans one upstream connection out to many read-only
// consumers, each behind its own bounded queue.
package broadcast

import (
    "context"
    "io"
    "sync"

    "go.uber.org/zap"

    "github.com/jw3/websocat/pkg/observability"
    "github.com/jw3/websocat/pkg/peer"
)

var Class = &peer.Class{
    Name:         "broadcast",
    Prefixes:     []string{"broadcast:", "reuse-broadcast:"},
    Overlay:      true,
    Boundary:     peer.InheritBoundary,
    Multiconnect: peer.SingleConnect,
    Help:         "Connect the inner specifier once and copy everything it sends to every consumer.\nA slow consumer loses its oldest queued messages; writes are refused.\n\nExample: websocat -u ws-l:127.0.0.1:8800 broadcast:tcp:127.0.0.1:4444",
    Construct:    construct,
}

var Metrics = observability.Default

type hubKey struct{ n *peer.Node }

type result struct {
    p   *peer.Peer
    err error
}

// hub owns the upstream Peer and the subscriber set. Once the upstream ends,
// subscribers see EOF and the next consumer connects again.
type hub struct {
    mu         sync.Mutex
    up         *peer.Peer
    connecting bool
    waiters    []chan result
    subs       map[*queue]struct{}
}

func construct(n *peer.Node, cp peer.ConstructParams) peer.Constructor {
    if cp.State == nil { return peer.Failed(peer.Constructionf("broadcast", "no program state")) }
    h := cp.State.Slot(hubKey{n}, func() any { return &hub{subs: make(map[*queue]struct{})} }).(*hub)
    return peer.Once(func(ctx context.Context) (*peer.Peer, error) {
        return h.subscribe(ctx, n, cp)
    })
}

func (h *hub) subscribe(ctx context.Context, n *peer.Node, cp peer.ConstructParams) (*peer.Peer, error) {
    opts := cp.Opts()
    h.mu.Lock()
    if h.up != nil {
        p := h.addLocked(opts)
        h.mu.Unlock()
        return p, nil
    }
    if h.connecting {
        ch := make(chan result, 1)
        h.waiters = append(h.waiters, ch)
        h.mu.Unlock()
        select {
        case r := <-ch:
            return r.p, r.err
        case <-ctx.Done():
            return nil, ctx.Err()
        }
    }
    h.connecting = true
    h.mu.Unlock()

    up, err := n.Inner.Construct(cp).Resolve(cp.Context())

    h.mu.Lock()
    defer h.mu.Unlock()
    h.connecting = false
    waiters := h.waiters
    h.waiters = nil
    if err != nil {
        zap.L().Warn("broadcast: upstream connection failed", zap.String("spec", n.Inner.String()), zap.Error(err))
        for _, w := range waiters { w <- result{err: err} }
        return nil, err
    }
    h.up = up
    cp.State.OnClose(func() { _ = up.Close() })
    go h.pump(up, opts.BufferSize)
    for _, w := range waiters { w <- result{p: h.addLocked(opts)} }
    return h.addLocked(opts), nil
}

func (h *hub) addLocked(opts *peer.Options) *peer.Peer {
    q := &queue{ch: make(chan []byte, opts.BroadcastQueueLen), done: make(chan struct{}), h: h}
    h.subs[q] = struct{}{}
    return peer.New(peer.NewMessageReader(q.next, q.leave, opts.ReadDebtHandling), refuseWrites{})
}

// pump copies upstream chunks into every queue until the upstream ends.
func (h *hub) pump(up *peer.Peer, size int) {
    buf := make([]byte, size)
    for {
        n, err := up.R.Read(buf)
        if n > 0 {
            msg := append([]byte(nil), buf[:n]...)
            h.mu.Lock()
            for q := range h.subs { q.push(msg) }
            h.mu.Unlock()
        }
        if err != nil {
            if err != io.EOF { zap.L().Info("broadcast: upstream read failed", zap.Error(err)) }
            h.mu.Lock()
            for q := range h.subs { close(q.ch); delete(h.subs, q) }
            if h.up == up { h.up = nil }
            h.mu.Unlock()
            _ = up.Close()
            return
        }
    }
}

// queue is one consumer's bounded backlog. Only the pump sends on ch.
type queue struct {
    ch       chan []byte
    done     chan struct{}
    doneOnce sync.Once
    h        *hub
}

// push never blocks: when ch is full the oldest message makes room.
func (q *queue) push(msg []byte) {
    for {
        select {
        case q.ch <- msg:
            return
        default:
        }
        select {
        case <-q.ch:
            Metrics.BroadcastDropped()
        default:
        }
    }
}

func (q *queue) next() ([]byte, error) {
    select {
    case m, ok := <-q.ch:
        if !ok { return nil, io.EOF }
        return m, nil
    case <-q.done:
        return nil, io.EOF
    }
}

func (q *queue) leave() error {
    q.doneOnce.Do(func() {
        close(q.done)
        q.h.mu.Lock()
        delete(q.h.subs, q)
        q.h.mu.Unlock()
    })
    return nil
}

type refuseWrites struct{}

func (refuseWrites) Write([]byte) (int, error) { return 0, peer.Unsupported("broadcast write") }
func (refuseWrites) Close() error              { return nil }
