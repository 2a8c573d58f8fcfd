package peer

import (
    "context"
    "errors"

    "go.uber.org/zap"
)

// Shape is one of the four forms a Constructor can take.
type Shape int

const (
    ServeOnce Shape = iota
    ServeMultipleTimes
    Overlay1
    OverlayM
)

func (s Shape) String() string {
    switch s {
    case ServeOnce:
        return "once"
    case ServeMultipleTimes:
        return "multiple"
    case Overlay1:
        return "overlay-once"
    case OverlayM:
        return "overlay-multiple"
    default:
        return "unknown"
    }
}

var errNoPeer = errors.New("stream ended without producing a connection")

// Future yields exactly one Peer.
type Future func(ctx context.Context) (*Peer, error)

// Result is one item of a peer stream: either a Peer or the error that
// prevented this particular Peer from being produced. Info is the item's own
// left-to-right side channel, nil when the source has nothing to say.
type Result struct {
    Peer *Peer
    Err  error
    Info *LeftToRight
}

// Source starts a lazy stream of Peers. The returned channel is closed when
// the underlying producer ends or ctx is done. An item error concerns that
// item only unless it is marked Fatal, in which case it is the last item.
type Source func(ctx context.Context) <-chan Result

// Overlay transforms a Peer into another Peer. It owns p: when it fails, p is
// closed by the caller.
type Overlay func(ctx context.Context, p *Peer) (*Peer, error)

// Constructor is the result of constructing a Node.
type Constructor struct {
    shape   Shape
    once    Future
    multi   Source
    overlay Overlay
}

func Once(f Future) Constructor   { return Constructor{shape: ServeOnce, once: f} }
func Multi(s Source) Constructor  { return Constructor{shape: ServeMultipleTimes, multi: s} }

// Ready wraps an already established Peer.
func Ready(p *Peer) Constructor {
    return Once(func(context.Context) (*Peer, error) { return p, nil })
}

// Failed is a single-result Constructor that fails with err.
func Failed(err error) Constructor {
    return Once(func(context.Context) (*Peer, error) { return nil, err })
}

func (c Constructor) Shape() Shape { return c.shape }

// IsMulti reports whether the Constructor yields a stream of Peers.
func (c Constructor) IsMulti() bool { return c.shape == ServeMultipleTimes || c.shape == OverlayM }

// Map attaches o to every Peer the Constructor yields. Attaching to an already
// transformed Constructor composes o after the existing transform, so the
// result is always one of the four shapes.
func (c Constructor) Map(o Overlay) Constructor {
    switch c.shape {
    case ServeOnce:
        return Constructor{shape: Overlay1, once: c.once, overlay: o}
    case ServeMultipleTimes:
        return Constructor{shape: OverlayM, multi: c.multi, overlay: o}
    default:
        c.overlay = Compose(o, c.overlay)
        return c
    }
}

// Compose returns outer ∘ inner.
func Compose(outer, inner Overlay) Overlay {
    return func(ctx context.Context, p *Peer) (*Peer, error) {
        q, err := apply(ctx, inner, p)
        if err != nil { return nil, err }
        return apply(ctx, outer, q)
    }
}

func apply(ctx context.Context, o Overlay, p *Peer) (*Peer, error) {
    if o == nil { return p, nil }
    q, err := o(ctx, p)
    if err != nil {
        _ = p.Close()
        return nil, err
    }
    return q, nil
}

func (c Constructor) resolveOnce(ctx context.Context) (*Peer, error) {
    if c.once == nil { return nil, Constructionf("resolve", "empty constructor") }
    p, err := c.once(ctx)
    if err != nil { return nil, err }
    return apply(ctx, c.overlay, p)
}

// Resolve yields the one Peer of a single-result Constructor. For a stream it
// yields the first item and abandons the rest of the stream.
func (c Constructor) Resolve(ctx context.Context) (*Peer, error) {
    if !c.IsMulti() { return c.resolveOnce(ctx) }
    sctx, cancel := context.WithCancel(ctx)
    defer cancel()
    r, ok := <-c.Stream(sctx)
    if !ok {
        if err := ctx.Err(); err != nil { return nil, err }
        return nil, Connect("resolve", errNoPeer)
    }
    return r.Peer, r.Err
}

// pendingOverlays bounds how many stream items can be in transform at once.
const pendingOverlays = 16

// Stream yields every Peer of the Constructor. A single-result Constructor
// yields exactly one item. Transforms run concurrently, one per item, but
// items are delivered in the order the source produced them.
func (c Constructor) Stream(ctx context.Context) <-chan Result {
    out := make(chan Result)
    if !c.IsMulti() {
        go func() {
            defer close(out)
            p, err := c.resolveOnce(ctx)
            deliver(ctx, out, Result{Peer: p, Err: err})
        }()
        return out
    }
    if c.multi == nil {
        go func() {
            defer close(out)
            deliver(ctx, out, Result{Err: Fatal(Constructionf("stream", "empty constructor"))})
        }()
        return out
    }
    in := c.multi(ctx)
    if c.overlay == nil { return in }
    slots := make(chan chan Result, pendingOverlays)
    go func() {
        defer close(slots)
        for r := range in {
            slot := make(chan Result, 1)
            if r.Err != nil {
                slot <- r
            } else {
                info := r.Info
                if info == nil { info = &LeftToRight{} }
                go func(p *Peer) {
                    q, err := apply(withItem(ctx, info), c.overlay, p)
                    if err != nil { zap.L().Debug("overlay failed for stream item", zap.Error(err)) }
                    slot <- Result{Peer: q, Err: err, Info: info}
                }(r.Peer)
            }
            slots <- slot
        }
    }()
    go func() {
        defer close(out)
        // keep draining after ctx ends so late Peers get closed
        for slot := range slots { deliver(ctx, out, <-slot) }
    }()
    return out
}

// deliver sends r unless ctx ends first, in which case r's Peer is closed.
func deliver(ctx context.Context, out chan<- Result, r Result) bool {
    select {
    case out <- r:
        return true
    case <-ctx.Done():
        if r.Peer != nil { _ = r.Peer.Close() }
        return false
    }
}

// Deliver is deliver for Source implementations outside this package.
func Deliver(ctx context.Context, out chan<- Result, r Result) bool { return deliver(ctx, out, r) }
