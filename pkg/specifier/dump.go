package specifier

import (
    "github.com/jw3/websocat/pkg/codec"
    "github.com/jw3/websocat/pkg/peer"
)

// Tree renders n as nested maps, suitable for any codec.
func Tree(n *peer.Node) map[string]any {
    if n == nil { return nil }
    m := map[string]any{
        "class":            n.Class.Name,
        "message_oriented": n.IsMessageOriented(),
        "multiconnect":     n.IsMulticonnect(),
    }
    if n.Class.Overlay {
        m["inner"] = Tree(n.Inner)
    } else {
        m["arg"] = n.Arg
    }
    return m
}

// Dump encodes both trees of a run in format ("json", "cbor" or "proto").
func Dump(left, right *peer.Node, format string) ([]byte, error) {
    reg, err := codec.NewRegistry()
    if err != nil { return nil, err }
    c, err := reg.Get(format)
    if err != nil { return nil, err }
    return c.Marshal(map[string]any{"left": Tree(left), "right": Tree(right)})
}
