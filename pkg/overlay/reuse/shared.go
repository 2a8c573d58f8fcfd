package reuse

import (
    "io"
    "sync"

    "github.com/jw3/websocat/pkg/peer"
)

const chunkSize = 65536

// Shared lets many holders use one Peer. Reads are pumped from the Peer and
// each chunk goes to whichever handle asks first; writes are serialized. A
// holder closing its handle leaves the Peer open, and a pending read on that
// handle returns io.EOF. The Peer itself is closed by Close.
type Shared struct {
    p     *peer.Peer
    wmu   sync.Mutex
    start sync.Once
    once  sync.Once

    chunks chan []byte
    done   chan struct{}
    rerr   error
    err    error
}

func NewShared(p *peer.Peer) *Shared {
    return &Shared{p: p, chunks: make(chan []byte), done: make(chan struct{})}
}

// Handle returns a view of the shared Peer.
func (s *Shared) Handle() *peer.Peer {
    h := &handle{s: s, done: make(chan struct{})}
    return peer.New(h, handleWriter{s})
}

func (s *Shared) Close() error {
    s.once.Do(func() {
        close(s.done)
        s.err = s.p.Close()
    })
    return s.err
}

// pump reads the Peer until it fails; rerr is published by closing chunks.
func (s *Shared) pump() {
    defer close(s.chunks)
    for {
        buf := make([]byte, chunkSize)
        n, err := s.p.R.Read(buf)
        if n > 0 {
            select {
            case s.chunks <- buf[:n]:
            case <-s.done:
                s.rerr = io.EOF
                return
            }
        }
        if err != nil {
            s.rerr = err
            return
        }
    }
}

type handle struct {
    s     *Shared
    left  []byte
    close sync.Once
    done  chan struct{}
}

func (h *handle) Read(b []byte) (int, error) {
    if len(h.left) == 0 {
        h.s.start.Do(func() { go h.s.pump() })
        select {
        case c, ok := <-h.s.chunks:
            if !ok { return 0, h.s.rerr }
            h.left = c
        case <-h.done:
            return 0, io.EOF
        }
    }
    n := copy(b, h.left)
    h.left = h.left[n:]
    return n, nil
}

func (h *handle) Close() error {
    h.close.Do(func() { close(h.done) })
    return nil
}

type handleWriter struct{ s *Shared }

func (h handleWriter) Write(b []byte) (int, error) {
    h.s.wmu.Lock(); defer h.s.wmu.Unlock()
    return h.s.p.W.Write(b)
}

func (handleWriter) Close() error { return nil }

var (
    _ io.ReadCloser  = (*handle)(nil)
    _ io.WriteCloser = handleWriter{}
)
