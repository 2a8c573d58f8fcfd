// Package exec runs a child process and talks to its stdin and stdout.
package exec

import (
    "context"
    "os"
    osexec "os/exec"
    "runtime"
    "time"

    "go.uber.org/zap"

    "github.com/jw3/websocat/pkg/peer"
)

var Exec = &peer.Class{
    Name:         "exec",
    Prefixes:     []string{"exec:"},
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.SingleConnect,
    Help:         "Run a program directly; arguments come from --exec-args.\n\nExample: websocat ws-l:127.0.0.1:8000 exec:cat",
    Construct:    construct(func(n *peer.Node, o *peer.Options) (string, []string) { return n.Arg, o.ExecArgs }),
}

var Shell = &peer.Class{
    Name:         "sh-c",
    Prefixes:     []string{"sh-c:", "cmd:"},
    Boundary:     peer.StreamOriented,
    Multiconnect: peer.SingleConnect,
    Help:         "Run a command line through the system shell.\n\nExample: websocat ws-l:127.0.0.1:8000 'sh-c:nc -q0 127.0.0.1 22'",
    Construct:    construct(shellLine),
}

// stopGrace is how long a child may run after both directions are closed.
var stopGrace = 2 * time.Second

func shellLine(n *peer.Node, _ *peer.Options) (string, []string) {
    if runtime.GOOS == "windows" { return "cmd", []string{"/C", n.Arg} }
    return "sh", []string{"-c", n.Arg}
}

func construct(argv func(*peer.Node, *peer.Options) (string, []string)) func(*peer.Node, peer.ConstructParams) peer.Constructor {
    return func(n *peer.Node, cp peer.ConstructParams) peer.Constructor {
        name, args := argv(n, cp.Opts())
        return peer.Once(func(context.Context) (*peer.Peer, error) {
            cmd := osexec.Command(name, args...)
            cmd.Stderr = os.Stderr
            cmd.Env = os.Environ()
            if l, ok := cp.Left(); ok {
                if u := l.URI(); u != "" { cmd.Env = append(cmd.Env, "WEBSOCAT_URI="+u) }
                if c := l.Client(); c != "" { cmd.Env = append(cmd.Env, "WEBSOCAT_CLIENT="+c) }
            }
            return start(cmd)
        })
    }
}

func start(cmd *osexec.Cmd) (*peer.Peer, error) {
    inR, inW, err := os.Pipe()
    if err != nil { return nil, peer.Connect("exec", err) }
    outR, outW, err := os.Pipe()
    if err != nil { inR.Close(); inW.Close(); return nil, peer.Connect("exec", err) }
    cmd.Stdin, cmd.Stdout = inR, outW
    if err := cmd.Start(); err != nil {
        inR.Close(); inW.Close(); outR.Close(); outW.Close()
        return nil, peer.Connect("exec "+cmd.Path, err)
    }
    // the child holds its own copies now
    inR.Close(); outW.Close()
    log := zap.L().With(zap.String("cmd", cmd.Path), zap.Int("pid", cmd.Process.Pid))
    log.Debug("child started")

    exited := make(chan struct{})
    go func() {
        err := cmd.Wait()
        close(exited)
        if err != nil { log.Info("child exited", zap.Error(err)) } else { log.Debug("child exited") }
    }()
    h := peer.NewHalves(outR.Close, inW.Close, func() error {
        go func() {
            select {
            case <-exited:
            case <-time.After(stopGrace):
                log.Debug("killing child")
                _ = cmd.Process.Kill()
            }
        }()
        return nil
    })
    return peer.Split(outR, inW, h), nil
}
