package main

import (
    "context"
    "errors"
    "flag"
    "fmt"
    "io"
    "net"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "go.uber.org/zap"

    "github.com/jw3/websocat/pkg/observability"
    "github.com/jw3/websocat/pkg/peer"
    "github.com/jw3/websocat/pkg/session"
    "github.com/jw3/websocat/pkg/specifier"
)

// run is the main entry point; it returns the process exit status.
func run(args []string, stdout, stderr io.Writer) int {
    cli, err := ParseFlags(args, stderr)
    if errors.Is(err, flag.ErrHelp) { return 0 }
    if err != nil {
        fmt.Fprintln(stderr, "websocat:", err)
        return 1
    }
    cfg := cli.Config

    reg := specifier.Default()
    if cli.LongHelp {
        reg.WriteHelp(stdout)
        return 0
    }

    cfg.Log.Level = observability.Verbosity(cfg.Log.Level, cli.Verbose, cli.Quiet)
    logger, err := observability.SetupLogger(cfg.Log)
    if err != nil {
        fmt.Fprintln(stderr, "websocat: failed to setup logger:", err)
        return 1
    }
    defer func() { _ = logger.Sync() }()

    left, err := reg.Parse(cli.Left)
    if err != nil {
        fmt.Fprintln(stderr, "websocat:", err)
        return 1
    }
    right, err := reg.Parse(cli.Right)
    if err != nil {
        fmt.Fprintln(stderr, "websocat:", err)
        return 1
    }
    left, right, warnings := specifier.Lint(left, right, &cfg.Options)
    for _, w := range warnings { zap.L().Warn(w) }

    if cli.DumpSpec {
        b, err := specifier.Dump(left, right, cli.DumpFormat)
        if err != nil {
            fmt.Fprintln(stderr, "websocat:", err)
            return 1
        }
        _, _ = stdout.Write(b)
        return 0
    }

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    if cfg.Metrics.Listen != "" {
        shutdown, err := serveMetrics(cfg.Metrics.Listen, cfg.Metrics.Path)
        if err != nil {
            zap.L().Error("metrics endpoint failed", zap.Error(err))
            return 1
        }
        defer shutdown()
    }

    zap.L().Info("starting", zap.Stringer("left", left), zap.Stringer("right", right))
    state := peer.NewProgramState()
    defer state.Close()
    onError := func(err error) { zap.L().Warn("connection failed", zap.Error(err)) }
    err = session.Serve(ctx, left, right, &cfg.Options, state, onError)
    if err != nil && ctx.Err() == nil {
        zap.L().Error("websocat stopped", zap.Error(err))
        fmt.Fprintln(stderr, "websocat:", err)
        return 1
    }
    return 0
}

// serveMetrics exposes the default metrics on addr and returns a shutdown func.
func serveMetrics(addr, path string) (func(), error) {
    h, err := observability.Default.Handler()
    if err != nil { return nil, err }
    ln, err := net.Listen("tcp", addr)
    if err != nil { return nil, err }
    mux := http.NewServeMux()
    mux.Handle(path, h)
    srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
    go func() {
        if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
            zap.L().Warn("metrics server stopped", zap.Error(err))
        }
    }()
    zap.L().Info("serving metrics", zap.String("addr", ln.Addr().String()), zap.String("path", path))
    return func() {
        ctx, cancel := context.WithTimeout(context.Background(), time.Second)
        defer cancel()
        _ = srv.Shutdown(ctx)
    }, nil
}
