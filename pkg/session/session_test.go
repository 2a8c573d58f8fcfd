package session

import (
    "bufio"
    "context"
    "errors"
    "io"
    "net"
    "sort"
    "strings"
    "sync"
    "sync/atomic"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/jw3/websocat/pkg/peer"
    "github.com/jw3/websocat/pkg/transport/tcp"
    "github.com/jw3/websocat/pkg/transport/trivial"
)

type sink struct {
    mu     sync.Mutex
    writes []string
    closed bool
}

func (s *sink) Write(b []byte) (int, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.closed { return 0, io.ErrClosedPipe }
    s.writes = append(s.writes, string(b))
    return len(b), nil
}

func (s *sink) Close() error { s.mu.Lock(); s.closed = true; s.mu.Unlock(); return nil }

func (s *sink) got() []string {
    s.mu.Lock()
    defer s.mu.Unlock()
    return append([]string(nil), s.writes...)
}

func (s *sink) isClosed() bool { s.mu.Lock(); defer s.mu.Unlock(); return s.closed }

type chunks struct{ parts []string }

func (c *chunks) Read(b []byte) (int, error) {
    if len(c.parts) == 0 { return 0, io.EOF }
    n := copy(b, c.parts[0])
    c.parts = c.parts[1:]
    return n, nil
}

func source(parts ...string) io.ReadCloser { return io.NopCloser(&chunks{parts: parts}) }

func onceNode(calls *atomic.Int32, p *peer.Peer) *peer.Node {
    return freshNode(calls, func() *peer.Peer { return p })
}

// freshNode resolves to mk() on every construction.
func freshNode(calls *atomic.Int32, mk func() *peer.Peer) *peer.Node {
    return &peer.Node{Class: &peer.Class{Name: "fixed", Construct: func(*peer.Node, peer.ConstructParams) peer.Constructor {
        return peer.Once(func(context.Context) (*peer.Peer, error) {
            calls.Add(1)
            return mk(), nil
        })
    }}}
}

func streamNode(items ...peer.Result) *peer.Node {
    return &peer.Node{Class: &peer.Class{Name: "stream", Multiconnect: peer.MultiConnect, Construct: func(*peer.Node, peer.ConstructParams) peer.Constructor {
        return peer.Multi(func(ctx context.Context) <-chan peer.Result {
            out := make(chan peer.Result)
            go func() {
                defer close(out)
                for _, r := range items {
                    if !peer.Deliver(ctx, out, r) { return }
                }
            }()
            return out
        })
    }}}
}

func serve(t *testing.T, left, right *peer.Node, opts *peer.Options, onError func(error)) error {
    t.Helper()
    done := make(chan error, 1)
    go func() { done <- Serve(context.Background(), left, right, opts, peer.NewProgramState(), onError) }()
    select {
    case err := <-done:
        return err
    case <-time.After(5 * time.Second):
        t.Fatal("Serve did not return")
        return nil
    }
}

func TestTransferKeepsChunkBoundaries(t *testing.T) {
    out := &sink{}
    tr := &Transfer{Direction: "forward", From: source("one", "two", "three"), To: out}
    require.NoError(t, tr.Run(1024, false))
    assert.Equal(t, []string{"one", "two", "three"}, out.got())
    assert.True(t, out.isClosed())
}

func TestTransferOneMessage(t *testing.T) {
    out := &sink{}
    tr := &Transfer{Direction: "forward", From: source("first", "second"), To: out}
    require.NoError(t, tr.Run(1024, true))
    assert.Equal(t, []string{"first"}, out.got())
}

func TestTransferWriteFailure(t *testing.T) {
    out := &sink{closed: true}
    tr := &Transfer{Direction: "forward", From: source("x"), To: out}
    err := tr.Run(1024, false)
    require.Error(t, err)
    assert.ErrorIs(t, err, peer.ErrTransfer)
}

func TestFixedSideResolvedPerStreamPeer(t *testing.T) {
    var calls atomic.Int32
    var mu sync.Mutex
    var fixed []*sink
    right := freshNode(&calls, func() *peer.Peer {
        o := &sink{}
        mu.Lock(); fixed = append(fixed, o); mu.Unlock()
        return peer.New(peer.EOF(), o)
    })
    var items []peer.Result
    var outs []*sink
    for _, s := range []string{"a", "b", "c"} {
        o := &sink{}
        outs = append(outs, o)
        items = append(items, peer.Result{Peer: peer.New(source(s), o)})
    }
    require.NoError(t, serve(t, streamNode(items...), right, peer.Default(), nil))

    assert.EqualValues(t, 3, calls.Load())
    require.Len(t, fixed, 3)
    var got []string
    for _, f := range fixed {
        require.Len(t, f.got(), 1)
        got = append(got, f.got()[0])
        assert.True(t, f.isClosed())
    }
    sort.Strings(got)
    assert.Equal(t, []string{"a", "b", "c"}, got)
    for _, o := range outs {
        assert.True(t, o.isClosed())
    }
}

func TestFixedSideSeesItsItemSideChannel(t *testing.T) {
    var mu sync.Mutex
    var seen []string
    right := &peer.Node{Class: &peer.Class{Name: "recorder", Construct: func(_ *peer.Node, cp peer.ConstructParams) peer.Constructor {
        return peer.Once(func(context.Context) (*peer.Peer, error) {
            l, ok := cp.Left()
            if !ok { return nil, errors.New("no side channel") }
            mu.Lock(); seen = append(seen, l.Client()); mu.Unlock()
            return peer.New(peer.EOF(), &sink{}), nil
        })
    }}}
    left := streamNode(
        peer.Result{Peer: peer.New(peer.EOF(), &sink{}), Info: peer.ClientInfo("10.0.0.1:1000")},
        peer.Result{Peer: peer.New(peer.EOF(), &sink{}), Info: peer.ClientInfo("10.0.0.2:2000")},
    )
    var reported []error
    require.NoError(t, serve(t, left, right, peer.Default(), func(err error) { reported = append(reported, err) }))
    sort.Strings(seen)
    assert.Equal(t, []string{"10.0.0.1:1000", "10.0.0.2:2000"}, seen)
    assert.Empty(t, reported)
}

func freeAddr(t *testing.T) string {
    t.Helper()
    l, err := net.Listen("tcp", "127.0.0.1:0")
    require.NoError(t, err)
    defer l.Close()
    return l.Addr().String()
}

func readLine(c net.Conn) (string, error) {
    _ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
    return bufio.NewReader(c).ReadString('\n')
}

func echo(addr, line string) (string, error) {
    c, err := net.Dial("tcp", addr)
    if err != nil { return "", err }
    defer c.Close()
    if _, err := c.Write([]byte(line + "\n")); err != nil { return "", err }
    return readLine(c)
}

func TestListenerGivesEveryClientItsOwnMirror(t *testing.T) {
    addr := freeAddr(t)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    left := &peer.Node{Class: tcp.Listen, Arg: addr}
    right := &peer.Node{Class: trivial.Mirror}
    done := make(chan error, 1)
    go func() { done <- Serve(ctx, left, right, peer.Default(), peer.NewProgramState(), nil) }()
    require.Eventually(t, func() bool {
        _, err := echo(addr, "ready")
        return err == nil
    }, 2*time.Second, 10*time.Millisecond)

    for _, line := range []string{"first", "second", "third"} {
        got, err := echo(addr, line)
        require.NoError(t, err)
        assert.Equal(t, line+"\n", got)
    }

    a, err := net.Dial("tcp", addr)
    require.NoError(t, err)
    defer a.Close()
    b, err := net.Dial("tcp", addr)
    require.NoError(t, err)
    defer b.Close()
    _, err = a.Write([]byte("from a\n"))
    require.NoError(t, err)
    _, err = b.Write([]byte("from b\n"))
    require.NoError(t, err)
    got, err := readLine(b)
    require.NoError(t, err)
    assert.Equal(t, "from b\n", got)
    got, err = readLine(a)
    require.NoError(t, err)
    assert.Equal(t, "from a\n", got)

    cancel()
    select {
    case err := <-done:
        assert.NoError(t, err)
    case <-time.After(5 * time.Second):
        t.Fatal("Serve did not return")
    }
}

func TestStreamOnRightSide(t *testing.T) {
    var calls atomic.Int32
    left := onceNode(&calls, peer.New(source("hello"), &sink{}))
    o := &sink{}
    right := streamNode(peer.Result{Peer: peer.New(peer.EOF(), o)})
    require.NoError(t, serve(t, left, right, peer.Default(), nil))
    assert.Equal(t, []string{"hello"}, o.got())
}

func TestZipPairsIndexWise(t *testing.T) {
    r0, r1 := &sink{}, &sink{}
    left := streamNode(
        peer.Result{Peer: peer.New(source("zero"), &sink{})},
        peer.Result{Peer: peer.New(source("one"), &sink{})},
    )
    right := streamNode(
        peer.Result{Peer: peer.New(peer.EOF(), r0)},
        peer.Result{Peer: peer.New(peer.EOF(), r1)},
    )
    require.NoError(t, serve(t, left, right, peer.Default(), nil))
    assert.Equal(t, []string{"zero"}, r0.got())
    assert.Equal(t, []string{"one"}, r1.got())
}

func TestOneshotStopsAfterFirstSession(t *testing.T) {
    var calls atomic.Int32
    fixed := &sink{}
    right := onceNode(&calls, peer.New(peer.EOF(), fixed))
    left := streamNode(
        peer.Result{Peer: peer.New(source("a"), &sink{})},
        peer.Result{Peer: peer.New(source("b"), &sink{})},
        peer.Result{Peer: peer.New(source("c"), &sink{})},
    )
    opts := peer.Default()
    opts.Oneshot = true
    require.NoError(t, serve(t, left, right, opts, nil))
    assert.Equal(t, []string{"a"}, fixed.got())
}

func TestUnidirectionalIgnoresReverse(t *testing.T) {
    var calls atomic.Int32
    leftOut, rightOut := &sink{}, &sink{}
    blockedR, blockedW := io.Pipe()
    defer blockedW.Close()
    left := onceNode(&calls, peer.New(source("hello"), leftOut))
    right := onceNode(&calls, peer.New(blockedR, rightOut))
    opts := peer.Default()
    opts.Unidirectional = true
    require.NoError(t, serve(t, left, right, opts, nil))
    assert.Equal(t, []string{"hello"}, rightOut.got())
    assert.Empty(t, leftOut.got())
}

func TestExitOnEOFEndsSession(t *testing.T) {
    var calls atomic.Int32
    rightOut := &sink{}
    blockedR, blockedW := io.Pipe()
    defer blockedW.Close()
    left := onceNode(&calls, peer.New(source("x"), &sink{}))
    right := onceNode(&calls, peer.New(blockedR, rightOut))
    opts := peer.Default()
    opts.ExitOnEOF = true
    var reported []error
    require.NoError(t, serve(t, left, right, opts, func(err error) { reported = append(reported, err) }))
    assert.Equal(t, []string{"x"}, rightOut.got())
    assert.Empty(t, reported)
}

func TestUnidirectionalExitOnEOFIgnoresBlockedReverse(t *testing.T) {
    var calls atomic.Int32
    rightOut := &sink{}
    blockedR, blockedW := io.Pipe()
    defer blockedW.Close()
    left := onceNode(&calls, peer.New(source("x"), &sink{}))
    right := onceNode(&calls, peer.New(blockedR, rightOut))
    opts := peer.Default()
    opts.Unidirectional = true
    opts.ExitOnEOF = true
    require.NoError(t, serve(t, left, right, opts, nil))
    assert.Equal(t, []string{"x"}, rightOut.got())
    assert.True(t, rightOut.isClosed())

    // the reverse source was released without being read
    _, err := blockedW.Write([]byte("late"))
    assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestFatalStreamErrorEndsServe(t *testing.T) {
    var calls atomic.Int32
    right := onceNode(&calls, peer.New(peer.EOF(), &sink{}))
    left := streamNode(peer.Result{Err: peer.Fatal(peer.Connect("tcp listen", errors.New("address in use")))})
    err := serve(t, left, right, peer.Default(), nil)
    require.Error(t, err)
    assert.True(t, peer.IsFatal(err))
    assert.ErrorIs(t, err, peer.ErrConnectFailure)
    assert.Zero(t, calls.Load())
}

func TestNonFatalStreamErrorsAreReported(t *testing.T) {
    var calls atomic.Int32
    fixed := &sink{}
    right := onceNode(&calls, peer.New(peer.EOF(), fixed))
    left := streamNode(
        peer.Result{Err: peer.Connect("accept", errors.New("transient"))},
        peer.Result{Peer: peer.New(source("after"), &sink{})},
    )
    var mu sync.Mutex
    var reported []string
    onError := func(err error) { mu.Lock(); reported = append(reported, err.Error()); mu.Unlock() }
    require.NoError(t, serve(t, left, right, peer.Default(), onError))
    assert.Equal(t, []string{"after"}, fixed.got())
    require.Len(t, reported, 1)
    assert.True(t, strings.Contains(reported[0], "transient"))
}

func TestSingleConnectFailure(t *testing.T) {
    left := &peer.Node{Class: &peer.Class{Name: "bad", Construct: func(*peer.Node, peer.ConstructParams) peer.Constructor {
        return peer.Failed(peer.Connect("dial", errors.New("refused")))
    }}}
    var calls atomic.Int32
    err := serve(t, left, onceNode(&calls, peer.New(peer.EOF(), &sink{})), peer.Default(), nil)
    assert.ErrorIs(t, err, peer.ErrConnectFailure)
    assert.Zero(t, calls.Load())
}

func TestSessionEndsOnContextCancel(t *testing.T) {
    r1, w1 := io.Pipe()
    r2, w2 := io.Pipe()
    defer w1.Close()
    defer w2.Close()
    s := New(peer.New(r1, &sink{}), peer.New(r2, &sink{}), peer.Default())
    ctx, cancel := context.WithCancel(context.Background())
    done := make(chan error, 1)
    go func() { done <- s.Run(ctx) }()
    cancel()
    select {
    case err := <-done:
        assert.NoError(t, err)
    case <-time.After(5 * time.Second):
        t.Fatal("session did not end")
    }
    assert.NotEmpty(t, s.ID)
}
