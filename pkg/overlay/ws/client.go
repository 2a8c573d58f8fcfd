package ws

import (
    "context"
    "crypto/tls"
    "fmt"
    "net"
    "net/http"
    "strings"
    "time"

    "github.com/gorilla/websocket"
    "go.uber.org/zap"

    "github.com/jw3/websocat/pkg/peer"
    "github.com/jw3/websocat/pkg/transport"
)

// Client connects to a ws:// URL over its own TCP connection.
var Client = &peer.Class{
    Name:         "ws",
    Prefixes:     []string{"ws://"},
    Boundary:     peer.MessageOriented,
    Multiconnect: peer.SingleConnect,
    Help:         "WebSocket client.\n\nExample: websocat - ws://echo.websocket.org/",
    Construct:    dialURL("ws://"),
}

// SecureClient is Client over TLS.
var SecureClient = &peer.Class{
    Name:         "wss",
    Prefixes:     []string{"wss://"},
    Boundary:     peer.MessageOriented,
    Multiconnect: peer.SingleConnect,
    Help:         "WebSocket client over TLS. --insecure skips certificate checks.\n\nExample: websocat - wss://echo.websocket.org/",
    Construct:    dialURL("wss://"),
}

// ClientOver runs the client handshake over the inner Peer, using --ws-c-uri
// as the request URL.
var ClientOver = &peer.Class{
    Name:         "ws-c",
    Prefixes:     []string{"ws-c:", "c-ws:", "ws-connect:", "connect-ws:"},
    Overlay:      true,
    Boundary:     peer.MessageOriented,
    Multiconnect: peer.InheritMulticonnect,
    Help:         "Low-level WebSocket client over another specifier.\n\nExample: websocat - ws-c:tcp:127.0.0.1:8080 --ws-c-uri=ws://example.com/chat",
    Construct:    over,
}

const handshakeTimeout = 45 * time.Second

func dialer(opts *peer.Options) *websocket.Dialer {
    d := &websocket.Dialer{
        Proxy:            http.ProxyFromEnvironment,
        HandshakeTimeout: handshakeTimeout,
        TLSClientConfig:  &tls.Config{InsecureSkipVerify: opts.Insecure},
    }
    if opts.WebsocketProtocol != "" { d.Subprotocols = []string{opts.WebsocketProtocol} }
    return d
}

// requestHeader builds the extra handshake headers. gorilla sets the
// websocket ones itself.
func requestHeader(opts *peer.Options) (http.Header, error) {
    h := http.Header{}
    if opts.Origin != "" { h.Set("Origin", opts.Origin) }
    for _, line := range opts.CustomHeaders {
        name, value, ok := strings.Cut(line, ":")
        if !ok || strings.TrimSpace(name) == "" {
            return nil, fmt.Errorf("header %q is not in \"Name: value\" form", line)
        }
        h.Add(strings.TrimSpace(name), strings.TrimSpace(value))
    }
    return h, nil
}

func dialURL(scheme string) func(*peer.Node, peer.ConstructParams) peer.Constructor {
    return func(n *peer.Node, cp peer.ConstructParams) peer.Constructor {
        url, opts := scheme+n.Arg, cp.Opts()
        return peer.Once(func(ctx context.Context) (*peer.Peer, error) {
            return handshake(ctx, dialer(opts), url, opts)
        })
    }
}

func over(n *peer.Node, cp peer.ConstructParams) peer.Constructor {
    opts := cp.Opts()
    return n.ConstructInner(cp, func(ctx context.Context, p *peer.Peer) (*peer.Peer, error) {
        d := dialer(opts)
        used := false
        d.NetDialContext = func(context.Context, string, string) (net.Conn, error) {
            if used { return nil, fmt.Errorf("inner connection already used") }
            used = true
            return transport.PeerConn(p, transport.Addr{Net: "peer", Name: "local"}, transport.Addr{Net: "peer", Name: n.Inner.String()}), nil
        }
        d.Proxy = nil
        return handshake(ctx, d, opts.WSCURI, opts)
    })
}

func handshake(ctx context.Context, d *websocket.Dialer, url string, opts *peer.Options) (*peer.Peer, error) {
    h, err := requestHeader(opts)
    if err != nil { return nil, peer.Construction("websocket client", err) }
    c, resp, err := d.DialContext(ctx, url, h)
    if resp != nil && resp.Body != nil { resp.Body.Close() }
    if err != nil {
        if resp != nil { err = fmt.Errorf("%w (HTTP status %s)", err, resp.Status) }
        return nil, peer.Connect("websocket client", err)
    }
    zap.L().Info("connected to websocket", zap.String("url", url), zap.String("subprotocol", c.Subprotocol()))
    return Peer(c, opts, true), nil
}
