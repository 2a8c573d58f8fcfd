// Package unix provides Unix domain socket specifiers, including Linux
// abstract-namespace sockets.
package unix

import (
    "context"
    "errors"
    "io/fs"
    "net"
    "os"

    "go.uber.org/zap"

    "github.com/jw3/websocat/pkg/peer"
    "github.com/jw3/websocat/pkg/transport"
)

var Connect = &peer.Class{
    Name:         "unix",
    Prefixes:     []string{"unix:", "unix-connect:", "connect-unix:", "unix-c:", "c-unix:"},
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.SingleConnect,
    Help:         "Connect to a Unix socket path.\n\nExample: websocat - unix:/tmp/app.sock",
    Construct:    connectPath(""),
}

var Listen = &peer.Class{
    Name:         "unix-l",
    Prefixes:     []string{"unix-l:", "unix-listen:", "listen-unix:", "l-unix:"},
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.MultiConnect,
    Help:         "Listen on a Unix socket path. See --unlink to remove a stale socket first.\n\nExample: websocat ws-u:unix-l:/tmp/ws.sock tcp:127.0.0.1:22",
    Construct:    listenPath(""),
}

var AbstractConnect = &peer.Class{
    Name:         "abstract",
    Prefixes:     []string{"abstract:", "abstract-connect:", "connect-abstract:", "abstract-c:", "c-abstract:"},
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.SingleConnect,
    Help:         "Connect to an abstract-namespace Unix socket (Linux).",
    Construct:    connectPath("@"),
}

var AbstractListen = &peer.Class{
    Name:         "abstract-l",
    Prefixes:     []string{"abstract-l:", "abstract-listen:", "listen-abstract:", "l-abstract:"},
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.MultiConnect,
    Help:         "Listen on an abstract-namespace Unix socket (Linux).",
    Construct:    listenPath("@"),
}

func connectPath(prefix string) func(*peer.Node, peer.ConstructParams) peer.Constructor {
    return func(n *peer.Node, _ peer.ConstructParams) peer.Constructor {
        return peer.Once(transport.Dial("unix", "unix", prefix+n.Arg))
    }
}

func listenPath(prefix string) func(*peer.Node, peer.ConstructParams) peer.Constructor {
    return func(n *peer.Node, cp peer.ConstructParams) peer.Constructor {
        path, unlink := prefix+n.Arg, cp.Opts().UnlinkUnixSocket && prefix == ""
        return peer.Multi(transport.AcceptSource("unix-l", func(ctx context.Context) (net.Listener, error) {
            if unlink {
                if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
                    zap.L().Warn("unlink failed", zap.String("path", path), zap.Error(err))
                }
            }
            var lc net.ListenConfig
            return lc.Listen(ctx, "unix", path)
        }, nil))
    }
}
