package mem

import (
    "context"
    "io"
    "sync"

    "go.uber.org/zap"

    "github.com/jw3/websocat/pkg/peer"
)

// Connect dials a named in-process listener.
var Connect = &peer.Class{
    Name:         "mem",
    Prefixes:     []string{"mem:", "mem-c:"},
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.SingleConnect,
    Help:         "Connect to an in-process listener registered with mem-l: under the same name.",
    Construct:    connect,
}

// Listen registers a named in-process listener for the lifetime of its stream.
var Listen = &peer.Class{
    Name:         "mem-l",
    Prefixes:     []string{"mem-l:", "mem-listen:"},
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.MultiConnect,
    Help:         "Accept in-process connections made with mem: under the same name.",
    Construct:    listen,
}

type registryKey struct{}

// registry holds the listeners of one run.
type registry struct {
    mu        sync.Mutex
    listeners map[string]*listener
}

type listener struct {
    name  string
    newCh chan *peer.Peer
    done  chan struct{}
}

func registryOf(st *peer.ProgramState) *registry {
    return st.Slot(registryKey{}, func() any { return &registry{listeners: make(map[string]*listener)} }).(*registry)
}

func stateOf(cp peer.ConstructParams) *peer.ProgramState {
    if cp.State == nil { return fallback }
    return cp.State
}

var fallback = peer.NewProgramState()

func connect(n *peer.Node, cp peer.ConstructParams) peer.Constructor {
    name, reg := n.Arg, registryOf(stateOf(cp))
    return peer.Once(func(ctx context.Context) (*peer.Peer, error) {
        reg.mu.Lock(); l := reg.listeners[name]; reg.mu.Unlock()
        if l == nil { return nil, peer.Connect("mem", errNoListener(name)) }
        srv, cli := Pair()
        select {
        case l.newCh <- srv:
            return cli, nil
        case <-l.done:
            return nil, peer.Connect("mem", errNoListener(name))
        case <-ctx.Done():
            return nil, ctx.Err()
        }
    })
}

func listen(n *peer.Node, cp peer.ConstructParams) peer.Constructor {
    name, reg := n.Arg, registryOf(stateOf(cp))
    return peer.Multi(func(ctx context.Context) <-chan peer.Result {
        out := make(chan peer.Result)
        go func() {
            defer close(out)
            reg.mu.Lock()
            if _, ok := reg.listeners[name]; ok {
                reg.mu.Unlock()
                peer.Deliver(ctx, out, peer.Result{Err: peer.Fatal(peer.Constructionf("mem-l", "listener %q already exists", name))})
                return
            }
            l := &listener{name: name, newCh: make(chan *peer.Peer), done: make(chan struct{})}
            reg.listeners[name] = l
            reg.mu.Unlock()
            defer func() {
                reg.mu.Lock(); delete(reg.listeners, name); reg.mu.Unlock()
                close(l.done)
            }()
            zap.L().Debug("listening", zap.String("kind", "mem-l"), zap.String("name", name))
            for {
                select {
                case <-ctx.Done():
                    return
                case p := <-l.newCh:
                    if !peer.Deliver(ctx, out, peer.Result{Peer: p}) { return }
                }
            }
        }()
        return out
    })
}

// Pair returns two connected Peers. Closing one side's W makes the other
// side's R return io.EOF.
func Pair() (*peer.Peer, *peer.Peer) {
    ar, aw := io.Pipe()
    br, bw := io.Pipe()
    return peer.New(ar, bw), peer.New(br, aw)
}

type errNoListener string

func (e errNoListener) Error() string { return "no listener named " + string(e) }
