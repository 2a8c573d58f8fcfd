// Package ws provides the WebSocket client and server specifiers.
//
// A WebSocket connection becomes a message-oriented Peer: every Write sends
// one message and every incoming message is delivered to R under the run's
// read-debt policy.
package ws

import (
    "errors"
    "io"
    "net"
    "sync"
    "time"

    "github.com/gorilla/websocket"

    "github.com/jw3/websocat/pkg/peer"
)

const closeTimeout = 5 * time.Second

// Peer adapts c. sendClose governs whether closing W sends a close frame.
func Peer(c *websocket.Conn, opts *peer.Options, sendClose bool) *peer.Peer {
    w := &writer{c: c, kind: websocket.BinaryMessage}
    if opts.WebsocketTextMode { w.kind = websocket.TextMessage }
    shutW := func() error { return nil }
    if sendClose && !opts.WebsocketDontClose { shutW = w.sendClose }
    h := peer.NewHalves(nil, shutW, c.Close)
    r := peer.NewMessageReader(reader(c), h.CloseRead, opts.ReadDebtHandling)
    return peer.Split(r, w, h)
}

func reader(c *websocket.Conn) func() ([]byte, error) {
    return func() ([]byte, error) {
        _, data, err := c.ReadMessage()
        if err != nil {
            if isClosed(err) { return nil, io.EOF }
            return nil, peer.Transfer("websocket read", err)
        }
        return data, nil
    }
}

func isClosed(err error) bool {
    var ce *websocket.CloseError
    return errors.As(err, &ce) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF)
}

type writer struct {
    mu   sync.Mutex
    c    *websocket.Conn
    kind int
}

func (w *writer) Write(b []byte) (int, error) {
    w.mu.Lock(); defer w.mu.Unlock()
    if err := w.c.WriteMessage(w.kind, b); err != nil { return 0, err }
    return len(b), nil
}

func (w *writer) sendClose() error {
    w.mu.Lock(); defer w.mu.Unlock()
    msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
    err := w.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
    if errors.Is(err, websocket.ErrCloseSent) { return nil }
    return err
}
