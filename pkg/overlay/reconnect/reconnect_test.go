package reconnect

import (
    "context"
    "errors"
    "io"
    "strings"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/jw3/websocat/pkg/peer"
)

// flaky fails its first failures attempts, then serves peers from make.
type flaky struct {
    mu       sync.Mutex
    attempts int
    failures int
    make     func(i int) *peer.Peer
}

func (f *flaky) node() *peer.Node {
    c := &peer.Class{Name: "flaky", Construct: func(*peer.Node, peer.ConstructParams) peer.Constructor {
        return peer.Once(func(context.Context) (*peer.Peer, error) {
            f.mu.Lock(); defer f.mu.Unlock()
            f.attempts++
            if f.attempts <= f.failures { return nil, peer.Connect("flaky", errors.New("refused")) }
            return f.make(f.attempts - f.failures), nil
        })
    }}
    return &peer.Node{Class: Class, Inner: &peer.Node{Class: c}}
}

func fastOpts() *peer.Options {
    o := peer.Default()
    o.AutoreconnectDelay = time.Millisecond
    o.AutoreconnectMaxDelay = 4 * time.Millisecond
    return o
}

func TestFailuresAreInvisible(t *testing.T) {
    f := &flaky{failures: 3, make: func(i int) *peer.Peer {
        if i > 2 { return peer.New(&blocking{}, peer.Discard()) }
        return peer.New(peer.NopReadCloser(strings.NewReader([]string{"", "first|", "second"}[i])), peer.Discard())
    }}
    p, err := f.node().Construct(peer.ConstructParams{Options: fastOpts()}).Resolve(context.Background())
    require.NoError(t, err)

    var got strings.Builder
    buf := make([]byte, 64)
    for got.Len() < len("first|second") {
        n, err := p.R.Read(buf)
        require.NoError(t, err)
        got.Write(buf[:n])
    }
    assert.Equal(t, "first|second", got.String())
    f.mu.Lock()
    assert.Equal(t, 5, f.attempts)
    f.mu.Unlock()
    require.NoError(t, p.Close())
}

// blocking reads nothing until closed.
type blocking struct {
    once sync.Once
    done chan struct{}
    mu   sync.Mutex
}

func (b *blocking) ch() chan struct{} {
    b.mu.Lock(); defer b.mu.Unlock()
    if b.done == nil { b.done = make(chan struct{}) }
    return b.done
}

func (b *blocking) Read([]byte) (int, error) { <-b.ch(); return 0, io.EOF }
func (b *blocking) Close() error             { b.once.Do(func() { close(b.ch()) }); return nil }

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }
func (brokenWriter) Close() error              { return nil }

type sink struct {
    mu  sync.Mutex
    buf strings.Builder
}

func (s *sink) Write(b []byte) (int, error) { s.mu.Lock(); defer s.mu.Unlock(); return s.buf.Write(b) }
func (s *sink) Close() error                { return nil }

func TestWriteMovesToReplacement(t *testing.T) {
    out := &sink{}
    f := &flaky{failures: 1, make: func(i int) *peer.Peer {
        if i == 1 { return peer.New(&blocking{}, brokenWriter{}) }
        return peer.New(&blocking{}, out)
    }}
    p, err := f.node().Construct(peer.ConstructParams{Options: fastOpts()}).Resolve(context.Background())
    require.NoError(t, err)
    n, err := p.W.Write([]byte("payload"))
    require.NoError(t, err)
    assert.Equal(t, 7, n)
    out.mu.Lock()
    assert.Equal(t, "payload", out.buf.String())
    out.mu.Unlock()
    require.NoError(t, p.Close())
}

func TestCloseStopsRetrying(t *testing.T) {
    f := &flaky{failures: 1 << 30}
    p, err := f.node().Construct(peer.ConstructParams{Options: fastOpts()}).Resolve(context.Background())
    require.NoError(t, err)
    done := make(chan error, 1)
    go func() { _, err := p.R.Read(make([]byte, 8)); done <- err }()
    time.Sleep(20 * time.Millisecond)
    require.NoError(t, p.Close())
    select {
    case err := <-done:
        assert.ErrorIs(t, err, io.EOF)
    case <-time.After(2 * time.Second):
        t.Fatal("read did not return after close")
    }
}

func TestBackoff(t *testing.T) {
    assert.Equal(t, 40*time.Millisecond, backoff(20*time.Millisecond, time.Second))
    assert.Equal(t, time.Second, backoff(800*time.Millisecond, time.Second))
    assert.Equal(t, time.Duration(0), backoff(0, time.Second))
}
