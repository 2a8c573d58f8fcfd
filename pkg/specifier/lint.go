package specifier

import (
    "fmt"

    "github.com/jw3/websocat/pkg/overlay/broadcast"
    "github.com/jw3/websocat/pkg/overlay/line"
    "github.com/jw3/websocat/pkg/overlay/reuse"
    "github.com/jw3/websocat/pkg/peer"
)

// Lint adjusts the pair of trees for the options and reports suspicious
// combinations. In text mode, when exactly one side is message-oriented, that
// side is wrapped in msg2line.
func Lint(left, right *peer.Node, opts *peer.Options) (*peer.Node, *peer.Node, []string) {
    var warnings []string
    if opts.WebsocketTextMode && !opts.NoAutoLinemode {
        lm, rm := left.IsMessageOriented(), right.IsMessageOriented()
        switch {
        case lm && !rm:
            left = &peer.Node{Class: line.ToLines, Inner: left}
        case rm && !lm:
            right = &peer.Node{Class: line.ToLines, Inner: right}
        }
    }
    if left.IsMulticonnect() && right.IsMulticonnect() {
        warnings = append(warnings, "both sides accept multiple connections; they are paired one to one in arrival order")
    }
    for _, n := range []*peer.Node{left, right} {
        for x := n; x != nil; x = x.Inner {
            if (x.Class == reuse.Class || x.Class == broadcast.Class) && x.Inner.IsMulticonnect() {
                warnings = append(warnings, fmt.Sprintf("%s over %s uses only the first connection", x.Class.Name, x.Inner))
            }
        }
    }
    if opts.Unidirectional && opts.UnidirectionalReverse {
        warnings = append(warnings, "both -u and -U given; nothing will be copied")
    }
    if opts.WebsocketTextMode && !left.IsMessageOriented() && !right.IsMessageOriented() {
        warnings = append(warnings, "--text has no effect without a message-oriented side")
    }
    return left, right, warnings
}
