// Package stdio connects the process's standard input and output.
package stdio

import (
    "context"
    "io"
    "os"
    "sync"

    "github.com/jw3/websocat/pkg/overlay/reuse"
    "github.com/jw3/websocat/pkg/peer"
)

var Class = &peer.Class{
    Name:         "stdio",
    Prefixes:     []string{"stdio:", "-"},
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.SingleConnect,
    Help:         "Read from stdin and write to stdout. \"-\" is a shorthand.\n\nExample: websocat - ws://echo.example.com/",
    Construct:    construct,
}

// Inetd is stdio under another name for use from inetd-style supervisors.
var Inetd = &peer.Class{
    Name:         "inetd",
    Prefixes:     []string{"inetd:"},
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.SingleConnect,
    Help:         "Like stdio:, meant for programs started by inetd or systemd socket activation.",
    Construct:    construct,
}

// Streams lets tests substitute the process streams.
var Streams = func() (io.Reader, io.Writer) { return os.Stdin, os.Stdout }

var (
    processOnce sync.Once
    process     *reuse.Shared
)

// handle returns a view of the process streams. They outlive any one
// session: closing the handle ends its pending read but leaves stdin and
// stdout open.
func handle() *peer.Peer {
    processOnce.Do(func() {
        in, out := Streams()
        process = reuse.NewShared(peer.New(peer.NopReadCloser(in), peer.NopWriteCloser(out)))
    })
    return process.Handle()
}

func construct(*peer.Node, peer.ConstructParams) peer.Constructor {
    return peer.Once(func(context.Context) (*peer.Peer, error) { return handle(), nil })
}
