package reuse

import (
    "io"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/jw3/websocat/pkg/peer"
)

func TestClosingHandleEndsPendingRead(t *testing.T) {
    r, w := io.Pipe()
    defer w.Close()
    sh := NewShared(peer.New(r, peer.Discard()))
    defer sh.Close()

    h := sh.Handle()
    done := make(chan error, 1)
    go func() {
        _, err := h.R.Read(make([]byte, 8))
        done <- err
    }()
    require.NoError(t, h.R.Close())
    select {
    case err := <-done:
        assert.ErrorIs(t, err, io.EOF)
    case <-time.After(2 * time.Second):
        t.Fatal("read did not return")
    }
}

func TestChunkGoesToOneHandle(t *testing.T) {
    r, w := io.Pipe()
    sh := NewShared(peer.New(r, peer.Discard()))
    defer sh.Close()
    a, b := sh.Handle(), sh.Handle()

    go func() { _, _ = w.Write([]byte("hello")); _ = w.Close() }()
    buf := make([]byte, 3)
    n, err := a.R.Read(buf)
    require.NoError(t, err)
    assert.Equal(t, "hel", string(buf[:n]))
    n, err = a.R.Read(buf)
    require.NoError(t, err)
    assert.Equal(t, "lo", string(buf[:n]))

    _, err = b.R.Read(buf)
    assert.ErrorIs(t, err, io.EOF)
}

func TestHandleCloseLeavesPeerOpen(t *testing.T) {
    out := &closeRecorder{}
    sh := NewShared(peer.New(peer.EOF(), out))
    h := sh.Handle()
    require.NoError(t, h.Close())
    _, err := sh.Handle().W.Write([]byte("x"))
    require.NoError(t, err)
    assert.False(t, out.closed)
    require.NoError(t, sh.Close())
    assert.True(t, out.closed)
}

type closeRecorder struct{ closed bool }

func (c *closeRecorder) Write(b []byte) (int, error) { return len(b), nil }
func (c *closeRecorder) Close() error                { c.closed = true; return nil }
