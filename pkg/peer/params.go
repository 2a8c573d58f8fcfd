package peer

import (
    "context"
    "sync"
)

// L2RRole says whether a construction call writes or reads the side channel.
type L2RRole int

const (
    FillIn L2RRole = iota
    ReadFrom
)

// LeftToRight is connection metadata produced while constructing the left
// specifier and readable while constructing the right one.
type LeftToRight struct {
    mu         sync.Mutex
    uri        string
    clientAddr string
}

// ClientInfo is a fresh side channel knowing only the client address.
func ClientInfo(addr string) *LeftToRight { return &LeftToRight{clientAddr: addr} }

func (l *LeftToRight) SetURI(uri string)  { l.mu.Lock(); l.uri = uri; l.mu.Unlock() }
func (l *LeftToRight) SetClient(a string) { l.mu.Lock(); l.clientAddr = a; l.mu.Unlock() }
func (l *LeftToRight) URI() string        { l.mu.Lock(); defer l.mu.Unlock(); return l.uri }
func (l *LeftToRight) Client() string     { l.mu.Lock(); defer l.mu.Unlock(); return l.clientAddr }

// ConstructParams is the per-call context of a construction.
type ConstructParams struct {
    // Ctx bounds background work spawned on behalf of the whole run (shared
    // connections, listeners). Peer resolution takes its own context.
    Ctx     context.Context
    Options *Options
    State   *ProgramState
    L2R     *LeftToRight
    Role    L2RRole
}

// Context returns Ctx or context.Background when unset.
func (cp ConstructParams) Context() context.Context {
    if cp.Ctx == nil { return context.Background() }
    return cp.Ctx
}

// Opts returns Options or the defaults when unset.
func (cp ConstructParams) Opts() *Options {
    if cp.Options == nil { return Default() }
    return cp.Options
}

type itemKey struct{}

// withItem scopes ctx to one stream item and its side channel.
func withItem(ctx context.Context, l *LeftToRight) context.Context {
    return context.WithValue(ctx, itemKey{}, l)
}

// Fill runs f on the side channel of the connection being built. Inside a
// stream that is the item's own channel; otherwise the run's channel, and
// only when this call is the left-hand one.
func (cp ConstructParams) Fill(ctx context.Context, f func(*LeftToRight)) {
    if l, ok := ctx.Value(itemKey{}).(*LeftToRight); ok && l != nil { f(l); return }
    if cp.L2R != nil && cp.Role == FillIn { f(cp.L2R) }
}

// Left returns the side channel when this call is the right-hand one.
func (cp ConstructParams) Left() (*LeftToRight, bool) {
    if cp.L2R != nil && cp.Role == ReadFrom { return cp.L2R, true }
    return nil, false
}
