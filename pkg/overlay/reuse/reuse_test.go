package reuse

import (
    "context"
    "errors"
    "io"
    "sync"
    "sync/atomic"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/jw3/websocat/pkg/peer"
)

// counting builds a mirror Peer per construction, failing the first
// failures attempts.
type counting struct {
    calls    atomic.Int32
    failures int32
    closed   atomic.Bool
    gate     chan struct{}
}

func (c *counting) class() *peer.Class {
    return &peer.Class{Name: "counting", Construct: func(*peer.Node, peer.ConstructParams) peer.Constructor {
        return peer.Once(func(context.Context) (*peer.Peer, error) {
            n := c.calls.Add(1)
            if c.gate != nil { <-c.gate }
            if n <= c.failures { return nil, peer.Connect("counting", errors.New("refused")) }
            r, w := io.Pipe()
            return peer.New(r, &closeFlag{WriteCloser: w, f: &c.closed}), nil
        })
    }}
}

type closeFlag struct {
    io.WriteCloser
    f *atomic.Bool
}

func (c *closeFlag) Close() error { c.f.Store(true); return c.WriteCloser.Close() }

func TestConcurrentConsumersShareOneConnection(t *testing.T) {
    inner := &counting{}
    n := &peer.Node{Class: Class, Inner: &peer.Node{Class: inner.class()}}
    state := peer.NewProgramState()
    cp := peer.ConstructParams{State: state}

    const consumers = 10
    handles := make([]*peer.Peer, consumers)
    var wg sync.WaitGroup
    for i := range handles {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            p, err := n.Construct(cp).Resolve(context.Background())
            assert.NoError(t, err)
            handles[i] = p
        }(i)
    }
    wg.Wait()
    assert.EqualValues(t, 1, inner.calls.Load())

    // one shared mirror: written by one consumer, read by another
    go func() { _, _ = handles[0].W.Write([]byte("shared")) }()
    buf := make([]byte, 16)
    k, err := handles[consumers-1].R.Read(buf)
    require.NoError(t, err)
    assert.Equal(t, "shared", string(buf[:k]))

    // consumers closing their handles leave the connection alone
    for _, h := range handles { require.NoError(t, h.Close()) }
    assert.False(t, inner.closed.Load())
    state.Close()
    assert.True(t, inner.closed.Load())
}

func TestFailureReachesWaitersThenRetries(t *testing.T) {
    inner := &counting{failures: 1, gate: make(chan struct{})}
    n := &peer.Node{Class: Class, Inner: &peer.Node{Class: inner.class()}}
    cp := peer.ConstructParams{State: peer.NewProgramState()}
    defer cp.State.Close()
    s := cp.State.Slot(slotKey{n}, func() any { return &slot{} }).(*slot)

    errs := make(chan error, 3)
    for i := 0; i < 3; i++ {
        go func() {
            _, err := n.Construct(cp).Resolve(context.Background())
            errs <- err
        }()
    }
    require.Eventually(t, func() bool {
        s.mu.Lock(); defer s.mu.Unlock()
        return s.connecting && len(s.waiters) == 2
    }, time.Second, time.Millisecond)
    close(inner.gate)
    for i := 0; i < 3; i++ { assert.ErrorIs(t, <-errs, peer.ErrConnectFailure) }
    assert.EqualValues(t, 1, inner.calls.Load())

    p, err := n.Construct(cp).Resolve(context.Background())
    require.NoError(t, err)
    assert.NotNil(t, p)
    assert.EqualValues(t, 2, inner.calls.Load())
}

func TestSlotsAreSeparatePerNode(t *testing.T) {
    inner := &counting{}
    c := inner.class()
    a := &peer.Node{Class: Class, Inner: &peer.Node{Class: c}}
    b := &peer.Node{Class: Class, Inner: &peer.Node{Class: c}}
    cp := peer.ConstructParams{State: peer.NewProgramState()}
    defer cp.State.Close()
    for _, n := range []*peer.Node{a, b, a} {
        _, err := n.Construct(cp).Resolve(context.Background())
        require.NoError(t, err)
    }
    assert.EqualValues(t, 2, inner.calls.Load())
}
