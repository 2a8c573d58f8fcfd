package tcp

import (
    "context"
    "net"

    "github.com/jw3/websocat/pkg/peer"
    "github.com/jw3/websocat/pkg/transport"
)

// Connect is the TCP client leaf.
var Connect = &peer.Class{
    Name:         "tcp",
    Prefixes:     []string{"tcp:", "tcp-connect:", "connect-tcp:", "tcp-c:", "c-tcp:"},
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.SingleConnect,
    Help:         "Connect to a TCP host:port.\n\nExample: websocat - tcp:127.0.0.1:22",
    Construct:    connect,
}

// Listen is the TCP server leaf; every accepted connection is a Peer.
var Listen = &peer.Class{
    Name:         "tcp-l",
    Prefixes:     []string{"tcp-l:", "tcp-listen:", "listen-tcp:", "l-tcp:"},
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.MultiConnect,
    Help:         "Listen for TCP connections on host:port.\n\nExample: websocat tcp-l:0.0.0.0:8080 mirror:",
    Construct:    listen,
}

func connect(n *peer.Node, _ peer.ConstructParams) peer.Constructor {
    return peer.Once(transport.Dial("tcp", "tcp", n.Arg))
}

func listen(n *peer.Node, _ peer.ConstructParams) peer.Constructor {
    addr := n.Arg
    return peer.Multi(transport.AcceptSource("tcp-l", func(ctx context.Context) (net.Listener, error) {
        var lc net.ListenConfig
        return lc.Listen(ctx, "tcp", addr)
    }, nil))
}
