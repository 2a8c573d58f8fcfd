// Package reconnect hides connection failures of an inner specifier by
// constructing it again.
package reconnect

import (
    "context"
    "errors"
    "io"
    "sync"
    "time"

    "go.uber.org/zap"

    "github.com/jw3/websocat/pkg/observability"
    "github.com/jw3/websocat/pkg/peer"
)

var Class = &peer.Class{
    Name:         "autoreconnect",
    Prefixes:     []string{"autoreconnect:"},
    Overlay:      true,
    Boundary:     peer.InheritBoundary,
    Multiconnect: peer.SingleConnect,
    Help:         "Reconnect the inner specifier whenever it fails or ends, with exponential backoff\nbetween --autoreconnect-delay and --autoreconnect-max-delay.\n\nExample: websocat - autoreconnect:tcp:127.0.0.1:5555",
    Construct:    construct,
}

var Metrics = observability.Default

var errClosed = errors.New("autoreconnect: closed")

func construct(n *peer.Node, cp peer.ConstructParams) peer.Constructor {
    return peer.Once(func(context.Context) (*peer.Peer, error) {
        ctx, cancel := context.WithCancel(cp.Context())
        c := &conn{n: n, cp: cp, opts: cp.Opts(), ctx: ctx, cancel: cancel}
        return peer.New(reader{c}, writer{c}), nil
    })
}

// conn is one logical connection backed by a succession of real ones.
type conn struct {
    n      *peer.Node
    cp     peer.ConstructParams
    opts   *peer.Options
    ctx    context.Context
    cancel context.CancelFunc

    mu      sync.Mutex
    cur     *peer.Peer
    ready   chan struct{} // set while a connect is in flight
    rClosed bool
    wClosed bool
}

// current returns the live connection, connecting first if there is none.
// Concurrent callers share one connect.
func (c *conn) current() (*peer.Peer, error) {
    for {
        c.mu.Lock()
        if c.rClosed && c.wClosed { c.mu.Unlock(); return nil, errClosed }
        if c.cur != nil { p := c.cur; c.mu.Unlock(); return p, nil }
        if ch := c.ready; ch != nil {
            c.mu.Unlock()
            select {
            case <-ch:
            case <-c.ctx.Done():
                return nil, errClosed
            }
            continue
        }
        ch := make(chan struct{})
        c.ready = ch
        c.mu.Unlock()

        p, err := c.dial()

        c.mu.Lock()
        c.ready = nil
        close(ch)
        if err != nil { c.mu.Unlock(); return nil, err }
        if c.rClosed && c.wClosed { c.mu.Unlock(); _ = p.Close(); return nil, errClosed }
        if c.wClosed { _ = p.W.Close() }
        c.cur = p
        c.mu.Unlock()
        return p, nil
    }
}

func (c *conn) dial() (*peer.Peer, error) {
    delay := c.opts.AutoreconnectDelay
    for attempt := 1; ; attempt++ {
        p, err := c.n.Inner.Construct(c.cp).Resolve(c.ctx)
        if c.ctx.Err() != nil {
            if p != nil { _ = p.Close() }
            return nil, errClosed
        }
        Metrics.ReconnectAttempt(err == nil)
        if err == nil {
            if attempt > 1 { zap.L().Info("autoreconnect: connected", zap.Int("attempt", attempt)) }
            return p, nil
        }
        zap.L().Info("autoreconnect: attempt failed", zap.String("spec", c.n.Inner.String()),
            zap.Int("attempt", attempt), zap.Duration("retry_in", delay), zap.Error(err))
        t := time.NewTimer(delay)
        select {
        case <-c.ctx.Done():
            t.Stop()
            return nil, errClosed
        case <-t.C:
        }
        delay = backoff(delay, c.opts.AutoreconnectMaxDelay)
    }
}

func backoff(d, max time.Duration) time.Duration {
    d *= 2
    if max > 0 && d > max { d = max }
    return d
}

// drop discards p if it is still the live connection.
func (c *conn) drop(p *peer.Peer, why error) {
    c.mu.Lock()
    live := c.cur == p
    if live { c.cur = nil }
    c.mu.Unlock()
    if live {
        zap.L().Debug("autoreconnect: connection lost", zap.String("spec", c.n.Inner.String()), zap.Error(why))
        _ = p.Close()
    }
}

func (c *conn) closeHalf(read bool) error {
    c.mu.Lock()
    if read { c.rClosed = true } else { c.wClosed = true }
    both, p := c.rClosed && c.wClosed, c.cur
    if both { c.cur = nil }
    c.mu.Unlock()
    if both {
        c.cancel()
        if p != nil { return p.Close() }
        return nil
    }
    if !read && p != nil { return p.W.Close() }
    return nil
}

type reader struct{ c *conn }

func (r reader) Read(b []byte) (int, error) {
    for {
        r.c.mu.Lock()
        closed := r.c.rClosed
        r.c.mu.Unlock()
        if closed { return 0, io.EOF }
        p, err := r.c.current()
        if err != nil {
            if errors.Is(err, errClosed) { return 0, io.EOF }
            return 0, err
        }
        n, err := p.R.Read(b)
        if err == nil { return n, nil }
        r.c.mu.Lock()
        halfClosed := r.c.wClosed
        r.c.mu.Unlock()
        if halfClosed && errors.Is(err, io.EOF) { return n, io.EOF }
        r.c.drop(p, err)
        if n > 0 { return n, nil }
    }
}

func (r reader) Close() error { return r.c.closeHalf(true) }

type writer struct{ c *conn }

func (w writer) Write(b []byte) (int, error) {
    written := 0
    for written < len(b) {
        p, err := w.c.current()
        if err != nil {
            if errors.Is(err, errClosed) { return written, io.ErrClosedPipe }
            return written, err
        }
        n, err := p.W.Write(b[written:])
        written += n
        if err != nil { w.c.drop(p, err) }
    }
    return written, nil
}

func (w writer) Close() error { return w.c.closeHalf(false) }
