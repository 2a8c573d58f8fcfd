// Package specifier turns specifier strings such as "ws-u:tcp-l:127.0.0.1:80"
// into peer.Node trees, applies lints, and renders trees for inspection.
package specifier

import (
    "sort"
    "strings"

    "github.com/jw3/websocat/pkg/overlay/broadcast"
    "github.com/jw3/websocat/pkg/overlay/line"
    "github.com/jw3/websocat/pkg/overlay/reconnect"
    "github.com/jw3/websocat/pkg/overlay/reuse"
    "github.com/jw3/websocat/pkg/overlay/ws"
    "github.com/jw3/websocat/pkg/peer"
    "github.com/jw3/websocat/pkg/transport/exec"
    "github.com/jw3/websocat/pkg/transport/file"
    "github.com/jw3/websocat/pkg/transport/mem"
    "github.com/jw3/websocat/pkg/transport/quic"
    "github.com/jw3/websocat/pkg/transport/stdio"
    "github.com/jw3/websocat/pkg/transport/tcp"
    "github.com/jw3/websocat/pkg/transport/trivial"
    "github.com/jw3/websocat/pkg/transport/udp"
    "github.com/jw3/websocat/pkg/transport/unix"
    "github.com/jw3/websocat/pkg/transport/winpipe"
)

// Alias rewrites a prefix into a longer specifier before parsing.
type Alias struct {
    Prefix string
    // Expand returns the replacement for the whole specifier given the text
    // after Prefix.
    Expand func(rest string, r *Registry) string
    Help   string
}

// Registry is the fixed set of classes and aliases known to the parser.
type Registry struct {
    classes []*peer.Class
    aliases []Alias
}

func NewRegistry(classes []*peer.Class, aliases []Alias) *Registry {
    return &Registry{classes: classes, aliases: aliases}
}

// Default returns the registry with every built-in class.
func Default() *Registry {
    classes := []*peer.Class{
        ws.Client, ws.SecureClient, ws.ClientOver, ws.Server,
        tcp.Connect, tcp.Listen,
        udp.Connect, udp.Listen,
        unix.Connect, unix.Listen, unix.AbstractConnect, unix.AbstractListen,
        mem.Connect, mem.Listen,
        quic.Connect, quic.Listen,
        stdio.Class, stdio.Inetd,
        file.Read, file.Write, file.Append,
        exec.Exec, exec.Shell,
        trivial.Mirror, trivial.Literal, trivial.LiteralReply, trivial.Clogged,
        line.ToMessages, line.ToLines,
        reuse.Class, broadcast.Class, reconnect.Class,
    }
    classes = append(classes, winpipe.Classes()...)
    return NewRegistry(classes, defaultAliases())
}

func defaultAliases() []Alias {
    fixed := func(to string) func(string, *Registry) string {
        return func(rest string, _ *Registry) string { return to + rest }
    }
    return []Alias{
        {Prefix: "ws-l:", Expand: wsListen, Help: "WebSocket server. ws-l:HOST:PORT means ws-u:tcp-l:HOST:PORT; ws-l:SPEC means ws-u:SPEC."},
        {Prefix: "ws-listen:", Expand: wsListen, Help: "Same as ws-l:."},
        {Prefix: "l-ws:", Expand: wsListen, Help: "Same as ws-l:."},
        {Prefix: "inetd-ws:", Expand: fixed("ws-u:stdio:"), Help: "WebSocket server on stdio, for inetd. Same as ws-u:stdio:."},
        {Prefix: "l-ws-unix:", Expand: fixed("ws-u:unix-l:"), Help: "WebSocket server on a Unix socket. Same as ws-u:unix-l:."},
        {Prefix: "l-ws-abstract:", Expand: fixed("ws-u:abstract-l:"), Help: "WebSocket server on an abstract Unix socket. Same as ws-u:abstract-l:."},
    }
}

// wsListen accepts both ws-l:127.0.0.1:80 and ws-l:unix-l:/path.
func wsListen(rest string, r *Registry) string {
    if rest == "" { return "ws-u:" }
    if _, _, ok := r.match(rest); ok { return "ws-u:" + rest }
    return "ws-u:tcp-l:" + rest
}

// Classes returns the classes sorted by name.
func (r *Registry) Classes() []*peer.Class {
    out := append([]*peer.Class(nil), r.classes...)
    sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
    return out
}

func (r *Registry) Aliases() []Alias { return append([]Alias(nil), r.aliases...) }

// Lookup finds a class by name.
func (r *Registry) Lookup(name string) (*peer.Class, bool) {
    for _, c := range r.classes {
        if c.Name == name { return c, true }
    }
    return nil, false
}

// match returns the class with the longest prefix of s. Prefixes that do not
// end in ':' or '/' must match s exactly.
func (r *Registry) match(s string) (*peer.Class, string, bool) {
    var best *peer.Class
    bestLen := -1
    for _, c := range r.classes {
        for _, p := range c.Prefixes {
            open := strings.HasSuffix(p, ":") || strings.HasSuffix(p, "/")
            if (open && strings.HasPrefix(s, p) || !open && s == p) && len(p) > bestLen {
                best, bestLen = c, len(p)
            }
        }
    }
    if best == nil { return nil, "", false }
    return best, s[bestLen:], true
}

func (r *Registry) alias(s string) (Alias, string, bool) {
    var best Alias
    found := false
    for _, a := range r.aliases {
        if strings.HasPrefix(s, a.Prefix) && (!found || len(a.Prefix) > len(best.Prefix)) {
            best, found = a, true
        }
    }
    if !found { return Alias{}, "", false }
    return best, s[len(best.Prefix):], true
}
