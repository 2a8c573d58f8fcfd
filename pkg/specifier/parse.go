package specifier

import (
    "github.com/jw3/websocat/pkg/peer"
)

// maxDepth bounds overlay nesting so alias loops cannot recurse forever.
const maxDepth = 32

// Parse builds the node tree for s.
func (r *Registry) Parse(s string) (*peer.Node, error) { return r.parse(s, 0) }

func (r *Registry) parse(s string, depth int) (*peer.Node, error) {
    if depth > maxDepth { return nil, peer.Constructionf("parse", "specifier nested too deeply: %q", s) }
    if s == "" { return nil, peer.Constructionf("parse", "empty specifier") }
    if c, rest, ok := r.match(s); ok {
        if !c.Overlay { return &peer.Node{Class: c, Arg: rest}, nil }
        if rest == "" { return nil, peer.Constructionf("parse", "%s needs an inner specifier", c.Name) }
        inner, err := r.parse(rest, depth+1)
        if err != nil { return nil, err }
        return &peer.Node{Class: c, Inner: inner}, nil
    }
    if a, rest, ok := r.alias(s); ok {
        return r.parse(a.Expand(rest, r), depth+1)
    }
    return nil, peer.Constructionf("parse", "unknown specifier %q", s)
}
