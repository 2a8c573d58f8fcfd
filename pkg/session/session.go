// Package session copies data between two Peers and pairs the Peers that two
// specifier trees produce.
package session

import (
    "context"
    "errors"
    "io"
    "sync"

    "github.com/google/uuid"
    "go.uber.org/zap"
    "golang.org/x/sync/errgroup"

    "github.com/jw3/websocat/pkg/observability"
    "github.com/jw3/websocat/pkg/peer"
)

var Metrics = observability.Default

// Transfer is one direction of a Session.
type Transfer struct {
    Direction string
    From      io.ReadCloser
    To        io.WriteCloser
}

// Run copies until From ends. Each successful read becomes exactly one
// write, so message boundaries survive. With oneMessage only the first chunk
// is forwarded. Both ends are closed before returning.
func (t *Transfer) Run(bufSize int, oneMessage bool) error {
    defer t.From.Close()
    buf := make([]byte, bufSize)
    for {
        n, rerr := t.From.Read(buf)
        if n > 0 {
            if _, werr := t.To.Write(buf[:n]); werr != nil {
                _ = t.To.Close()
                return peer.Transfer(t.Direction+" write", werr)
            }
            Metrics.Transferred(t.Direction, n)
            if oneMessage { break }
        }
        if rerr != nil {
            if errors.Is(rerr, io.EOF) { break }
            _ = t.To.Close()
            return peer.Transfer(t.Direction+" read", rerr)
        }
    }
    if err := t.To.Close(); err != nil {
        zap.L().Debug("closing write half failed", zap.String("direction", t.Direction), zap.Error(err))
    }
    return nil
}

// Session is a pair of Transfers between two Peers. Either Transfer is nil
// when its direction is suppressed.
type Session struct {
    ID      string
    Forward *Transfer
    Reverse *Transfer

    left, right *peer.Peer
    opts        *peer.Options
    once        sync.Once
    tornDown    chan struct{}
}

// New builds the Session for left and right under opts.
func New(left, right *peer.Peer, opts *peer.Options) *Session {
    s := &Session{ID: uuid.NewString(), left: left, right: right, opts: opts, tornDown: make(chan struct{})}
    if !opts.UnidirectionalReverse {
        s.Forward = &Transfer{Direction: "forward", From: left.R, To: right.W}
    }
    if !opts.Unidirectional {
        s.Reverse = &Transfer{Direction: "reverse", From: right.R, To: left.W}
    }
    return s
}

// teardown closes both Peers; blocked Transfers return.
func (s *Session) teardown() {
    s.once.Do(func() {
        close(s.tornDown)
        _ = s.left.Close()
        _ = s.right.Close()
    })
}

func (s *Session) down() bool {
    select {
    case <-s.tornDown:
        return true
    default:
        return false
    }
}

// Run drives the Session to completion. It ends when every active Transfer
// has finished, when one fails, when exit_on_eof applies, or when ctx ends.
// Errors raised by the teardown itself are not reported.
func (s *Session) Run(ctx context.Context) error {
    log := zap.L().With(zap.String("session", s.ID))
    log.Debug("session started")
    Metrics.SessionStarted()

    stop := context.AfterFunc(ctx, s.teardown)
    defer stop()

    var g errgroup.Group
    for _, t := range []*Transfer{s.Forward, s.Reverse} {
        if t == nil { continue }
        t := t // per-iteration copy (go 1.21 loop semantics)
        g.Go(func() error {
            err := t.Run(s.opts.BufferSize, s.opts.OneMessage)
            if s.down() { return nil }
            if err != nil || s.opts.ExitOnEOF {
                if err == nil { log.Debug("end of data, ending session", zap.String("direction", t.Direction)) }
                s.teardown()
            }
            return err
        })
    }
    err := g.Wait()
    s.teardown()
    Metrics.SessionEnded(err)
    if err != nil {
        log.Debug("session failed", zap.Error(err))
    } else {
        log.Debug("session finished")
    }
    return err
}
