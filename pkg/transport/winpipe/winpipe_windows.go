//go:build windows

package winpipe

import (
    "context"
    "net"

    "github.com/Microsoft/go-winio"

    "github.com/jw3/websocat/pkg/peer"
    "github.com/jw3/websocat/pkg/transport"
)

var Connect = &peer.Class{
    Name:         "winpipe",
    Prefixes:     []string{"winpipe:", "namedpipe:"},
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.SingleConnect,
    Help:         "Connect to a Windows named pipe.\n\nExample: websocat - winpipe:\\\\.\\pipe\\example",
    Construct:    connect,
}

var Listen = &peer.Class{
    Name:         "winpipe-l",
    Prefixes:     []string{"winpipe-l:", "namedpipe-l:", "l-winpipe:"},
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.MultiConnect,
    Help:         "Serve a Windows named pipe.\n\nExample: websocat winpipe-l:\\\\.\\pipe\\example mirror:",
    Construct:    listen,
}

// Classes returns the named pipe specifiers available on this platform.
func Classes() []*peer.Class { return []*peer.Class{Connect, Listen} }

func connect(n *peer.Node, _ peer.ConstructParams) peer.Constructor {
    name := n.Arg
    return peer.Once(func(ctx context.Context) (*peer.Peer, error) {
        c, err := winio.DialPipeContext(ctx, name)
        if err != nil { return nil, peer.Connect("winpipe", err) }
        return transport.ConnPeer(c), nil
    })
}

func listen(n *peer.Node, _ peer.ConstructParams) peer.Constructor {
    name := n.Arg
    return peer.Multi(transport.AcceptSource("winpipe-l", func(context.Context) (net.Listener, error) {
        return winio.ListenPipe(name, &winio.PipeConfig{MessageMode: false})
    }, nil))
}
