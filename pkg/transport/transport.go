package transport

import (
    "context"
    "errors"
    "io"
    "net"
    "time"

    "go.uber.org/zap"

    "github.com/jw3/websocat/pkg/peer"
)

type closeWriter interface{ CloseWrite() error }
type closeReader interface{ CloseRead() error }

// ConnPeer wraps c as a Peer. Closing W half-closes c when the connection
// supports CloseWrite; c itself is closed once both halves are closed.
func ConnPeer(c net.Conn) *peer.Peer {
    var shutR, shutW func() error
    if cw, ok := c.(closeWriter); ok { shutW = cw.CloseWrite }
    if cr, ok := c.(closeReader); ok { shutR = cr.CloseRead }
    return peer.Split(c, c, peer.NewHalves(shutR, shutW, c.Close))
}

// Dial returns a Future that dials network/address.
func Dial(kind, network, address string) peer.Future {
    return func(ctx context.Context) (*peer.Peer, error) {
        d := &net.Dialer{}
        c, err := d.DialContext(ctx, network, address)
        if err != nil { return nil, peer.Connect(kind, err) }
        zap.L().Debug("connected", zap.String("kind", kind), zap.String("addr", remoteOf(c)))
        return ConnPeer(c), nil
    }
}

// ListenFunc opens a listener when a stream is started.
type ListenFunc func(ctx context.Context) (net.Listener, error)

// AcceptSource yields one Peer per accepted connection. A failure to open the
// listener is fatal to the stream; accept failures concern one item only.
// Each item carries the client address in its side channel. onAccept, when
// set, sees every connection before it is delivered.
func AcceptSource(kind string, listen ListenFunc, onAccept func(net.Conn)) peer.Source {
    return func(ctx context.Context) <-chan peer.Result {
        out := make(chan peer.Result)
        go func() {
            defer close(out)
            l, err := listen(ctx)
            if err != nil {
                zap.L().Error("listen failed", zap.String("kind", kind), zap.Error(err))
                peer.Deliver(ctx, out, peer.Result{Err: peer.Fatal(peer.Connect(kind+" listen", err))})
                return
            }
            zap.L().Info("listening", zap.String("kind", kind), zap.String("addr", l.Addr().String()))
            done := make(chan struct{})
            defer close(done)
            go func() {
                select { case <-ctx.Done(): case <-done: }
                _ = l.Close()
            }()
            for {
                c, err := l.Accept()
                if err != nil {
                    if ctx.Err() != nil || errors.Is(err, net.ErrClosed) { return }
                    zap.L().Warn("accept failed", zap.String("kind", kind), zap.Error(err))
                    if !peer.Deliver(ctx, out, peer.Result{Err: peer.Connect(kind+" accept", err)}) { return }
                    time.Sleep(50 * time.Millisecond)
                    continue
                }
                zap.L().Info("incoming connection", zap.String("kind", kind), zap.String("raddr", remoteOf(c)))
                if onAccept != nil { onAccept(c) }
                if !peer.Deliver(ctx, out, peer.Result{Peer: ConnPeer(c), Info: peer.ClientInfo(remoteOf(c))}) { return }
            }
        }()
        return out
    }
}

// remoteOf is the remote address of c, empty for unnamed unix peers.
func remoteOf(c net.Conn) string {
    if a := c.RemoteAddr(); a != nil { return a.String() }
    return ""
}

// Addr is a net.Addr for endpoints without a real network address.
type Addr struct {
    Net  string
    Name string
}

func (a Addr) Network() string { return a.Net }
func (a Addr) String() string  { return a.Name }

// PeerConn presents p as a net.Conn. Deadlines are accepted and ignored.
func PeerConn(p *peer.Peer, local, remote net.Addr) net.Conn {
    return &peerConn{p: p, local: local, remote: remote}
}

type peerConn struct {
    p      *peer.Peer
    local  net.Addr
    remote net.Addr
}

func (c *peerConn) Read(b []byte) (int, error)  { return c.p.R.Read(b) }
func (c *peerConn) Write(b []byte) (int, error) { return c.p.W.Write(b) }
func (c *peerConn) Close() error                { return c.p.Close() }
func (c *peerConn) CloseWrite() error           { return c.p.W.Close() }
func (c *peerConn) LocalAddr() net.Addr         { return c.local }
func (c *peerConn) RemoteAddr() net.Addr        { return c.remote }
func (c *peerConn) SetDeadline(time.Time) error      { return nil }
func (c *peerConn) SetReadDeadline(time.Time) error  { return nil }
func (c *peerConn) SetWriteDeadline(time.Time) error { return nil }

var _ io.ReadWriteCloser = (*peerConn)(nil)
