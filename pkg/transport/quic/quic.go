package quic

import (
    "context"
    "crypto/rand"
    "crypto/rsa"
    "crypto/tls"
    "crypto/x509"
    "errors"
    "math/big"
    "sync"
    "time"

    quicgo "github.com/quic-go/quic-go"
    "go.uber.org/zap"

    "github.com/jw3/websocat/pkg/peer"
)

const alpn = "websocat"

// Connect opens one bidirectional stream on a new QUIC connection.
var Connect = &peer.Class{
    Name:         "quic",
    Prefixes:     []string{"quic:", "quic-c:", "c-quic:"},
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.SingleConnect,
    Help:         "Open a QUIC stream to host:port. The server certificate is not verified.\n\nExample: websocat - quic:127.0.0.1:4433",
    Construct:    connect,
}

// Listen accepts QUIC connections; the first stream of each is a Peer.
// A stream becomes visible only after the client has sent data on it.
var Listen = &peer.Class{
    Name:         "quic-l",
    Prefixes:     []string{"quic-l:", "quic-listen:", "l-quic:"},
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.MultiConnect,
    Help:         "Listen for QUIC connections on host:port using an ephemeral self-signed certificate.\n\nExample: websocat quic-l:0.0.0.0:4433 mirror:",
    Construct:    listen,
}

var (
    certOnce sync.Once
    cert     tls.Certificate
    certErr  error
)

func serverTLS() (*tls.Config, error) {
    certOnce.Do(func() { cert, certErr = selfSignedCert() })
    if certErr != nil { return nil, certErr }
    return &tls.Config{Certificates: []tls.Certificate{cert}, NextProtos: []string{alpn}, MinVersion: tls.VersionTLS13}, nil
}

func clientTLS() *tls.Config {
    return &tls.Config{InsecureSkipVerify: true, NextProtos: []string{alpn}, MinVersion: tls.VersionTLS13}
}

func connect(n *peer.Node, _ peer.ConstructParams) peer.Constructor {
    addr := n.Arg
    return peer.Once(func(ctx context.Context) (*peer.Peer, error) {
        c, err := quicgo.DialAddr(ctx, addr, clientTLS(), &quicgo.Config{})
        if err != nil { return nil, peer.Connect("quic", err) }
        st, err := c.OpenStreamSync(ctx)
        if err != nil {
            _ = c.CloseWithError(0, "")
            return nil, peer.Connect("quic open stream", err)
        }
        zap.L().Debug("connected", zap.String("kind", "quic"), zap.String("addr", c.RemoteAddr().String()))
        return streamPeer(c, st), nil
    })
}

func listen(n *peer.Node, _ peer.ConstructParams) peer.Constructor {
    addr := n.Arg
    return peer.Multi(func(ctx context.Context) <-chan peer.Result {
        out := make(chan peer.Result)
        go func() {
            defer close(out)
            conf, err := serverTLS()
            if err == nil {
                var l *quicgo.Listener
                if l, err = quicgo.ListenAddr(addr, conf, &quicgo.Config{}); err == nil {
                    acceptLoop(ctx, l, out)
                    return
                }
            }
            peer.Deliver(ctx, out, peer.Result{Err: peer.Fatal(peer.Connect("quic-l listen", err))})
        }()
        return out
    })
}

func acceptLoop(ctx context.Context, l *quicgo.Listener, out chan<- peer.Result) {
    defer l.Close()
    zap.L().Info("listening", zap.String("kind", "quic-l"), zap.String("addr", l.Addr().String()))
    var wg sync.WaitGroup
    defer wg.Wait()
    for {
        c, err := l.Accept(ctx)
        if err != nil {
            if ctx.Err() == nil && !errors.Is(err, quicgo.ErrServerClosed) {
                zap.L().Warn("quic accept failed", zap.Error(err))
            }
            return
        }
        wg.Add(1)
        go func() {
            defer wg.Done()
            st, err := c.AcceptStream(ctx)
            if err != nil {
                _ = c.CloseWithError(0, "")
                peer.Deliver(ctx, out, peer.Result{Err: peer.Connect("quic accept stream", err)})
                return
            }
            raddr := c.RemoteAddr().String()
            zap.L().Info("incoming connection", zap.String("kind", "quic-l"), zap.String("raddr", raddr))
            peer.Deliver(ctx, out, peer.Result{Peer: streamPeer(c, st), Info: peer.ClientInfo(raddr)})
        }()
    }
}

// streamPeer closes the connection once both halves of st are closed, giving
// the remote side a moment to finish first.
func streamPeer(c quicgo.Connection, st quicgo.Stream) *peer.Peer {
    h := peer.NewHalves(
        func() error { st.CancelRead(0); return nil },
        st.Close,
        func() error {
            go func() {
                select {
                case <-c.Context().Done():
                case <-time.After(time.Second):
                }
                _ = c.CloseWithError(0, "")
            }()
            return nil
        },
    )
    return peer.Split(st, st, h)
}

// selfSignedCert generates a short-lived certificate for the listening side.
func selfSignedCert() (tls.Certificate, error) {
    priv, err := rsa.GenerateKey(rand.Reader, 2048)
    if err != nil { return tls.Certificate{}, err }
    tmpl := x509.Certificate{
        SerialNumber:          big.NewInt(time.Now().UnixNano()),
        NotBefore:             time.Now().Add(-time.Minute),
        NotAfter:              time.Now().Add(24 * time.Hour),
        KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
        ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
        BasicConstraintsValid: true,
        DNSNames:              []string{"localhost"},
    }
    der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
    if err != nil { return tls.Certificate{}, err }
    return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
