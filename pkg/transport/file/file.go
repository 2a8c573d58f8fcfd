// Package file provides specifiers backed by regular files.
package file

import (
    "context"
    "os"

    "github.com/jw3/websocat/pkg/peer"
)

var Read = &peer.Class{
    Name:         "readfile",
    Prefixes:     []string{"readfile:"},
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.SingleConnect,
    Help:         "Read a file; writes are discarded.\n\nExample: websocat ws-l:127.0.0.1:8000 readfile:hello.txt",
    Construct:    readFile,
}

var Write = &peer.Class{
    Name:         "writefile",
    Prefixes:     []string{"writefile:"},
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.SingleConnect,
    Help:         "Truncate and write a file; reads return end of data immediately.",
    Construct:    writeFile(os.O_CREATE | os.O_WRONLY | os.O_TRUNC),
}

var Append = &peer.Class{
    Name:         "appendfile",
    Prefixes:     []string{"appendfile:"},
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.SingleConnect,
    Help:         "Append to a file; reads return end of data immediately.\n\nExample: websocat -u ws-l:127.0.0.1:8000 reuse:appendfile:log.txt",
    Construct:    writeFile(os.O_CREATE | os.O_WRONLY | os.O_APPEND),
}

func readFile(n *peer.Node, _ peer.ConstructParams) peer.Constructor {
    path := n.Arg
    return peer.Once(func(context.Context) (*peer.Peer, error) {
        f, err := os.Open(path)
        if err != nil { return nil, peer.Connect("readfile", err) }
        return peer.New(f, peer.Discard()), nil
    })
}

func writeFile(flags int) func(*peer.Node, peer.ConstructParams) peer.Constructor {
    return func(n *peer.Node, _ peer.ConstructParams) peer.Constructor {
        path := n.Arg
        return peer.Once(func(context.Context) (*peer.Peer, error) {
            f, err := os.OpenFile(path, flags, 0o644)
            if err != nil { return nil, peer.Connect("writefile", err) }
            return peer.New(peer.EOF(), f), nil
        })
    }
}
