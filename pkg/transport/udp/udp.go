package udp

import (
    "context"
    "errors"
    "io"
    "net"
    "sync"

    "go.uber.org/zap"

    "github.com/jw3/websocat/pkg/peer"
)

const maxDatagram = 64 * 1024

// Connect sends every write as one datagram to a fixed address.
var Connect = &peer.Class{
    Name:         "udp",
    Prefixes:     []string{"udp:", "udp-connect:", "connect-udp:", "udp-c:", "c-udp:"},
    Boundary:     peer.MessageOriented,
    Multiconnect: peer.SingleConnect,
    Help:         "Send and receive UDP datagrams to and from host:port.\n\nExample: websocat ws-l:127.0.0.1:8000 udp:127.0.0.1:53",
    Construct:    connect,
}

// Listen binds a socket and replies to whoever sent the last datagram.
var Listen = &peer.Class{
    Name:         "udp-l",
    Prefixes:     []string{"udp-l:", "udp-listen:", "listen-udp:", "l-udp:"},
    Boundary:     peer.MessageOriented,
    Multiconnect: peer.SingleConnect,
    Help:         "Bind a UDP socket and reply to the sender of the most recent datagram.\n\nExample: websocat udp-l:127.0.0.1:8000 ws://example.com/",
    Construct:    listen,
}

func connect(n *peer.Node, cp peer.ConstructParams) peer.Constructor {
    addr, policy := n.Arg, cp.Opts().ReadDebtHandling
    return peer.Once(func(ctx context.Context) (*peer.Peer, error) {
        var d net.Dialer
        c, err := d.DialContext(ctx, "udp", addr)
        if err != nil { return nil, peer.Connect("udp", err) }
        h := peer.NewHalves(nil, nil, c.Close)
        buf := make([]byte, maxDatagram)
        r := peer.NewMessageReader(func() ([]byte, error) {
            n, err := c.Read(buf)
            if err != nil { return nil, closedAsEOF(err) }
            return append([]byte(nil), buf[:n]...), nil
        }, h.CloseRead, policy)
        return peer.Split(r, c, h), nil
    })
}

func listen(n *peer.Node, cp peer.ConstructParams) peer.Constructor {
    addr, opts := n.Arg, cp.Opts()
    return peer.Once(func(ctx context.Context) (*peer.Peer, error) {
        var lc net.ListenConfig
        pc, err := lc.ListenPacket(ctx, "udp", addr)
        if err != nil { return nil, peer.Connect("udp-l", err) }
        zap.L().Info("listening", zap.String("kind", "udp-l"), zap.String("addr", pc.LocalAddr().String()))
        s := &replySocket{pc: pc, oneshot: opts.UDPOneshotMode, replied: make(chan struct{})}
        h := peer.NewHalves(nil, nil, pc.Close)
        r := peer.NewMessageReader(s.next, h.CloseRead, opts.ReadDebtHandling)
        return peer.Split(r, s, h), nil
    })
}

// replySocket reads from anyone and writes to the most recent sender.
type replySocket struct {
    pc      net.PacketConn
    mu      sync.Mutex
    last    net.Addr
    buf     [maxDatagram]byte
    oneshot bool
    once    sync.Once
    replied chan struct{}
}

func (s *replySocket) next() ([]byte, error) {
    select {
    case <-s.replied:
        return nil, io.EOF
    default:
    }
    n, from, err := s.pc.ReadFrom(s.buf[:])
    if err != nil {
        select {
        case <-s.replied:
            return nil, io.EOF
        default:
        }
        return nil, closedAsEOF(err)
    }
    s.mu.Lock()
    if s.last == nil || s.last.String() != from.String() {
        zap.L().Debug("udp peer address", zap.String("raddr", from.String()))
        s.last = from
    }
    s.mu.Unlock()
    return append([]byte(nil), s.buf[:n]...), nil
}

func (s *replySocket) Write(b []byte) (int, error) {
    s.mu.Lock()
    to := s.last
    s.mu.Unlock()
    if to == nil {
        zap.L().Warn("udp-l: no peer address yet, dropping datagram", zap.Int("len", len(b)))
        return len(b), nil
    }
    if _, err := s.pc.WriteTo(b, to); err != nil { return 0, err }
    if s.oneshot {
        // unblock a pending ReadFrom; the socket is closed on teardown anyway
        s.once.Do(func() { close(s.replied); _ = s.pc.Close() })
    }
    return len(b), nil
}

func closedAsEOF(err error) error {
    if errors.Is(err, net.ErrClosed) { return io.EOF }
    return err
}
