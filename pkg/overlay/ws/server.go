package ws

import (
    "bufio"
    "context"
    "errors"
    "fmt"
    "io"
    "net"
    "net/http"

    "github.com/gorilla/websocket"
    "go.uber.org/zap"

    "github.com/jw3/websocat/pkg/peer"
    "github.com/jw3/websocat/pkg/transport"
)

// Server performs the server side of the handshake on each inner Peer.
var Server = &peer.Class{
    Name:         "ws-u",
    Prefixes:     []string{"ws-u:", "ws-upgrade:", "upgrade-ws:", "ws-server:"},
    Overlay:      true,
    Boundary:     peer.MessageOriented,
    Multiconnect: peer.InheritMulticonnect,
    Help:         "WebSocket server over another specifier. Plain HTTP requests get a 400 reply.\n\nExample: websocat ws-u:tcp-l:127.0.0.1:8080 mirror:",
    Construct:    upgrade,
}

var (
    ErrNotWebSocket = errors.New("not a websocket upgrade request")
    ErrURIRejected  = errors.New("request URI doesn't match --restrict-uri parameter")
)

const notWebSocketReply = "HTTP/1.1 400 Bad Request\r\nServer: websocat\r\nContent-Type: text/plain\r\nConnection: close\r\n\r\nOnly WebSocket connections are welcome here\n"

func upgrade(n *peer.Node, cp peer.ConstructParams) peer.Constructor {
    opts := cp.Opts()
    up := &websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
    if opts.WebsocketProtocol != "" { up.Subprotocols = []string{opts.WebsocketProtocol} }
    return n.ConstructInner(cp, func(ctx context.Context, p *peer.Peer) (*peer.Peer, error) {
        br := bufio.NewReader(p.R)
        req, err := http.ReadRequest(br)
        if err != nil { return nil, peer.Framing("websocket upgrade", err) }
        if !websocket.IsWebSocketUpgrade(req) {
            zap.L().Warn("plain HTTP request on websocket server", zap.String("uri", req.RequestURI))
            _, _ = io.WriteString(p.W, notWebSocketReply)
            return nil, peer.Framing("websocket upgrade", ErrNotWebSocket)
        }
        if opts.RestrictURI != "" && req.RequestURI != opts.RestrictURI {
            zap.L().Warn("incoming request URI doesn't match the --restrict-uri value", zap.String("uri", req.RequestURI))
            rw := newResponse(p.W)
            http.Error(rw, "Request URI doesn't match --restrict-uri parameter", http.StatusBadRequest)
            return nil, peer.Framing("websocket upgrade", ErrURIRejected)
        }

        conn := transport.PeerConn(peer.New(bufferedReader{br, p.R}, p.W), transport.Addr{Net: "peer", Name: "local"}, transport.Addr{Net: "peer", Name: req.RemoteAddr})
        rw := newResponse(p.W)
        rw.conn = conn
        c, err := up.Upgrade(rw, req, nil)
        if err != nil { return nil, peer.Framing("websocket upgrade", err) }
        zap.L().Info("incoming connection to websocket", zap.String("uri", req.RequestURI))
        cp.Fill(ctx, func(l *peer.LeftToRight) { l.SetURI(req.RequestURI) })
        return Peer(c, opts, true), nil
    })
}

// bufferedReader reads through the request parser's buffer and closes the
// underlying read half.
type bufferedReader struct {
    *bufio.Reader
    c io.Closer
}

func (b bufferedReader) Close() error { return b.c.Close() }

// response is the minimal http.ResponseWriter gorilla needs for both the
// rejection and the hijack paths.
type response struct {
    w      io.Writer
    header http.Header
    wrote  bool
    conn   net.Conn
}

func newResponse(w io.Writer) *response { return &response{w: w, header: http.Header{}} }

func (r *response) Header() http.Header { return r.header }

func (r *response) WriteHeader(code int) {
    if r.wrote { return }
    r.wrote = true
    r.header.Set("Connection", "close")
    fmt.Fprintf(r.w, "HTTP/1.1 %d %s\r\n", code, http.StatusText(code))
    _ = r.header.Write(r.w)
    io.WriteString(r.w, "\r\n")
}

func (r *response) Write(b []byte) (int, error) {
    r.WriteHeader(http.StatusOK)
    return r.w.Write(b)
}

func (r *response) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    if r.conn == nil { return nil, nil, http.ErrNotSupported }
    return r.conn, bufio.NewReadWriter(bufio.NewReader(r.conn), bufio.NewWriter(r.conn)), nil
}
