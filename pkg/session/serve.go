package session

import (
    "context"
    "sync"

    "go.uber.org/zap"

    "github.com/jw3/websocat/pkg/peer"
)

// Serve constructs both trees and runs Sessions until the work is done.
//
// Two single sides give one Session. A single side paired with a stream side
// is constructed and resolved again for every stream Peer, after that Peer
// arrived, so it sees the connection's own side channel; wrap it in reuse: to
// share one connection instead. Two stream sides are paired index-wise.
// Per-Session failures and non-fatal stream errors go to onError; Serve
// returns an error only when a side can no longer produce Peers.
func Serve(ctx context.Context, left, right *peer.Node, opts *peer.Options, state *peer.ProgramState, onError func(error)) error {
    if onError == nil {
        onError = func(err error) { zap.L().Warn("session error", zap.Error(err)) }
    }
    ctx, cancel := context.WithCancel(ctx)
    defer cancel()

    s := &server{ctx: ctx, cancel: cancel, opts: opts, state: state, onError: onError}
    defer s.wg.Wait()
    l2r := &peer.LeftToRight{}
    lc := left.Construct(s.params(l2r, peer.FillIn))
    rc := right.Construct(s.params(l2r, peer.ReadFrom))
    switch {
    case !lc.IsMulti() && !rc.IsMulti():
        return s.single(lc, rc)
    case lc.IsMulti() && rc.IsMulti():
        return s.zip(lc.Stream(ctx), rc.Stream(ctx))
    case lc.IsMulti():
        return s.fixed(lc.Stream(ctx), right, true)
    default:
        return s.fixed(rc.Stream(ctx), left, false)
    }
}

type server struct {
    ctx     context.Context
    cancel  context.CancelFunc
    opts    *peer.Options
    state   *peer.ProgramState
    onError func(error)
    wg      sync.WaitGroup
}

func (s *server) params(l2r *peer.LeftToRight, role peer.L2RRole) peer.ConstructParams {
    return peer.ConstructParams{Ctx: s.ctx, Options: s.opts, State: s.state, L2R: l2r, Role: role}
}

func (s *server) single(lc, rc peer.Constructor) error {
    l, err := lc.Resolve(s.ctx)
    if err != nil { return err }
    r, err := rc.Resolve(s.ctx)
    if err != nil {
        _ = l.Close()
        return err
    }
    s.run(l, r)
    return nil
}

func (s *server) run(l, r *peer.Peer) {
    if err := New(l, r, s.opts).Run(s.ctx); err != nil { s.onError(err) }
}

// pair yields the two Peers of one Session.
type pair func() (l, r *peer.Peer, err error)

// start runs a Session on what open yields. With oneshot the caller waits for
// it and stops, and a failure to open the pair is returned.
func (s *server) start(open pair) (stop bool, err error) {
    if s.opts.Oneshot {
        defer s.cancel()
        l, r, err := open()
        if err != nil { return true, err }
        s.run(l, r)
        return true, nil
    }
    s.wg.Add(1)
    go func() {
        defer s.wg.Done()
        l, r, err := open()
        if err != nil {
            if s.ctx.Err() == nil { s.onError(err) }
            return
        }
        s.run(l, r)
    }()
    return false, nil
}

// next takes the next item from a stream. ok is false when the stream is
// exhausted; err is set when a fatal item ended it.
func (s *server) next(in <-chan peer.Result) (r peer.Result, ok bool, err error) {
    for r := range in {
        if r.Err == nil { return r, true, nil }
        if peer.IsFatal(r.Err) { return peer.Result{}, false, r.Err }
        s.onError(r.Err)
    }
    return peer.Result{}, false, nil
}

// drain closes Peers produced after Serve stopped consuming.
func drain(in <-chan peer.Result) {
    for r := range in {
        if r.Peer != nil { _ = r.Peer.Close() }
    }
}

// fixed pairs every Peer of the stream with a Peer of its own from the single
// side. When the stream is on the left the single side reads the item's side
// channel. A stream that ends by itself lets running Sessions finish.
func (s *server) fixed(in <-chan peer.Result, one *peer.Node, streamIsLeft bool) error {
    defer func() { s.cancel(); drain(in) }()
    for {
        item, ok, err := s.next(in)
        if err != nil { return err }
        if !ok { s.wg.Wait(); return nil }
        stop, err := s.start(func() (*peer.Peer, *peer.Peer, error) {
            info, role := item.Info, peer.ReadFrom
            if info == nil || !streamIsLeft { info = &peer.LeftToRight{} }
            if !streamIsLeft { role = peer.FillIn }
            f, err := one.Construct(s.params(info, role)).Resolve(s.ctx)
            if err != nil {
                _ = item.Peer.Close()
                return nil, nil, err
            }
            if streamIsLeft { return item.Peer, f, nil }
            return f, item.Peer, nil
        })
        if stop { return err }
    }
}

func (s *server) zip(lin, rin <-chan peer.Result) error {
    defer func() { s.cancel(); drain(lin); drain(rin) }()
    for {
        l, ok, err := s.next(lin)
        if err != nil { return err }
        if !ok { s.wg.Wait(); return nil }
        r, ok, err := s.next(rin)
        if err != nil || !ok {
            _ = l.Peer.Close()
            if err == nil { s.wg.Wait() }
            return err
        }
        stop, err := s.start(func() (*peer.Peer, *peer.Peer, error) { return l.Peer, r.Peer, nil })
        if stop { return err }
    }
}
