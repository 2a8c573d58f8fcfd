// Package reuse shares one real connection among every consumer of a
// specifier node.
package reuse

import (
    "context"
    "sync"

    "go.uber.org/zap"

    "github.com/jw3/websocat/pkg/observability"
    "github.com/jw3/websocat/pkg/peer"
)

var Class = &peer.Class{
    Name:         "reuse",
    Prefixes:     []string{"reuse:", "reuse-raw:", "raw-reuse:"},
    Overlay:      true,
    Boundary:     peer.InheritBoundary,
    Multiconnect: peer.SingleConnect,
    Help:         "Connect the inner specifier once and hand the same connection to every consumer.\nClosing a consumer does not close the connection.\n\nExample: websocat -u ws-l:127.0.0.1:8800 reuse:tcp:127.0.0.1:4444",
    Construct:    construct,
}

// Metrics records real connections made by reuse slots.
var Metrics = observability.Default

// slotKey identifies a slot by the specifier node it was created for.
type slotKey struct{ n *peer.Node }

type result struct {
    p   *peer.Peer
    err error
}

// slot holds at most one real connection. A failed construction is
// reported to everyone waiting at that moment; the next consumer retries.
type slot struct {
    mu         sync.Mutex
    shared     *Shared
    connecting bool
    waiters    []chan result
}

func construct(n *peer.Node, cp peer.ConstructParams) peer.Constructor {
    state := cp.State
    if state == nil { return peer.Failed(peer.Constructionf("reuse", "no program state")) }
    s := state.Slot(slotKey{n}, func() any { return &slot{} }).(*slot)
    return peer.Once(func(ctx context.Context) (*peer.Peer, error) {
        return s.get(ctx, cp, n, state)
    })
}

func (s *slot) get(ctx context.Context, cp peer.ConstructParams, n *peer.Node, state *peer.ProgramState) (*peer.Peer, error) {
    s.mu.Lock()
    if s.shared != nil {
        h := s.shared.Handle()
        s.mu.Unlock()
        return h, nil
    }
    if s.connecting {
        ch := make(chan result, 1)
        s.waiters = append(s.waiters, ch)
        s.mu.Unlock()
        select {
        case r := <-ch:
            return r.p, r.err
        case <-ctx.Done():
            return nil, ctx.Err()
        }
    }
    s.connecting = true
    s.mu.Unlock()

    // the connection belongs to the run, not to this consumer
    p, err := n.Inner.Construct(cp).Resolve(cp.Context())

    s.mu.Lock()
    defer s.mu.Unlock()
    s.connecting = false
    waiters := s.waiters
    s.waiters = nil
    if err != nil {
        zap.L().Warn("reuse: connection failed", zap.String("spec", n.Inner.String()), zap.Error(err))
        for _, w := range waiters { w <- result{err: err} }
        return nil, err
    }
    Metrics.ReuseConnection()
    zap.L().Debug("reuse: connected", zap.String("spec", n.Inner.String()), zap.Int("waiters", len(waiters)))
    sh := NewShared(p)
    s.shared = sh
    state.OnClose(func() { _ = sh.Close() })
    for _, w := range waiters { w <- result{p: s.shared.Handle()} }
    return s.shared.Handle(), nil
}
