package udp

import (
    "context"
    "net"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/jw3/websocat/pkg/peer"
)

func TestReplySocketAnswersLastSender(t *testing.T) {
    pc, err := net.ListenPacket("udp", "127.0.0.1:0")
    require.NoError(t, err)
    defer pc.Close()
    s := &replySocket{pc: pc, replied: make(chan struct{})}

    n, err := s.Write([]byte("too early"))
    assert.NoError(t, err)
    assert.Equal(t, 9, n)

    cli, err := net.Dial("udp", pc.LocalAddr().String())
    require.NoError(t, err)
    defer cli.Close()
    _, err = cli.Write([]byte("hello"))
    require.NoError(t, err)

    msg, err := s.next()
    require.NoError(t, err)
    assert.Equal(t, "hello", string(msg))

    _, err = s.Write([]byte("world"))
    require.NoError(t, err)
    require.NoError(t, cli.SetReadDeadline(time.Now().Add(2*time.Second)))
    buf := make([]byte, 64)
    n, err = cli.Read(buf)
    require.NoError(t, err)
    assert.Equal(t, "world", string(buf[:n]))
}

func TestOneshotEndsAfterReply(t *testing.T) {
    pc, err := net.ListenPacket("udp", "127.0.0.1:0")
    require.NoError(t, err)
    s := &replySocket{pc: pc, oneshot: true, replied: make(chan struct{})}
    s.last = pc.LocalAddr()

    _, err = s.Write([]byte("bye"))
    require.NoError(t, err)
    _, err = s.next()
    assert.Error(t, err)
}

func TestDatagramsKeepBoundaries(t *testing.T) {
    srv, err := net.ListenPacket("udp", "127.0.0.1:0")
    require.NoError(t, err)
    defer srv.Close()

    p, err := (&peer.Node{Class: Connect, Arg: srv.LocalAddr().String()}).Construct(peer.ConstructParams{}).Resolve(context.Background())
    require.NoError(t, err)
    defer p.Close()
    for _, m := range []string{"one", "two"} {
        _, err = p.W.Write([]byte(m))
        require.NoError(t, err)
    }
    buf := make([]byte, 64)
    for _, want := range []string{"one", "two"} {
        require.NoError(t, srv.SetReadDeadline(time.Now().Add(2*time.Second)))
        n, _, err := srv.ReadFrom(buf)
        require.NoError(t, err)
        assert.Equal(t, want, string(buf[:n]))
    }
}
