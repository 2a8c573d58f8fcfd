package peer

import (
    "strings"
)

// Multiconnect declares how many Peers construction of a class can yield.
type Multiconnect int

const (
    SingleConnect Multiconnect = iota
    MultiConnect
    // InheritMulticonnect: same as the inner node (overlays).
    InheritMulticonnect
)

// Boundary declares whether a class preserves message boundaries.
type Boundary int

const (
    StreamOriented Boundary = iota
    MessageOriented
    // InheritBoundary: same as the inner node (overlays).
    InheritBoundary
)

// Class is the static description of one kind of specifier node. The set of
// classes is fixed by the registry in package specifier.
type Class struct {
    Name     string
    Prefixes []string
    // Overlay classes wrap an inner node instead of taking a plain argument.
    Overlay      bool
    Boundary     Boundary
    Multiconnect Multiconnect
    Help         string
    Construct    func(n *Node, cp ConstructParams) Constructor
}

// Node is one element of a specifier tree.
type Node struct {
    Class *Class
    Arg   string
    Inner *Node
}

// Construct realizes the node. Construction itself never blocks; all I/O
// happens when the Constructor is resolved.
func (n *Node) Construct(cp ConstructParams) Constructor {
    if n == nil || n.Class == nil || n.Class.Construct == nil {
        return Failed(Constructionf("construct", "unresolvable specifier node"))
    }
    if n.Class.Overlay && n.Inner == nil {
        return Failed(Constructionf("construct", "%s requires an inner specifier", n.Class.Name))
    }
    return n.Class.Construct(n, cp)
}

// ConstructInner constructs the inner node and attaches o to its result.
func (n *Node) ConstructInner(cp ConstructParams, o Overlay) Constructor {
    return n.Inner.Construct(cp).Map(o)
}

// IsMulticonnect resolves the class metadata through inherited overlays.
func (n *Node) IsMulticonnect() bool {
    for x := n; x != nil && x.Class != nil; x = x.Inner {
        switch x.Class.Multiconnect {
        case SingleConnect:
            return false
        case MultiConnect:
            return true
        }
    }
    return false
}

// IsMessageOriented resolves the class metadata through inherited overlays.
func (n *Node) IsMessageOriented() bool {
    for x := n; x != nil && x.Class != nil; x = x.Inner {
        switch x.Class.Boundary {
        case StreamOriented:
            return false
        case MessageOriented:
            return true
        }
    }
    return false
}

// String renders the node in prefix form, e.g. "ws-u:tcp-l:127.0.0.1:80".
func (n *Node) String() string {
    var b strings.Builder
    for x := n; x != nil; x = x.Inner {
        if x.Class == nil { b.WriteString("?"); break }
        pfx := x.Class.Name
        if len(x.Class.Prefixes) > 0 { pfx = x.Class.Prefixes[0] }
        b.WriteString(pfx)
        if !x.Class.Overlay { b.WriteString(x.Arg) }
    }
    return b.String()
}
