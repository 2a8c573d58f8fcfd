package main

import (
    "errors"
    "flag"
    "fmt"
    "io"
    "strconv"
    "strings"

    "github.com/jw3/websocat/pkg/config"
    "github.com/jw3/websocat/pkg/peer"
)

// CLI holds everything taken from the command line. Config carries the
// loaded configuration with option flags already applied.
type CLI struct {
    Config *config.Config
    Left   string
    Right  string

    DumpSpec   bool
    DumpFormat string
    LongHelp   bool
    Verbose    int
    Quiet      bool
}

// ParseFlags loads the configuration named by --config, then applies the
// remaining flags on top of it. Flags left unset keep the configured values.
func ParseFlags(args []string, stderr io.Writer) (*CLI, error) {
    cfg, err := config.Load(configPath(args))
    if err != nil { return nil, err }
    cli := &CLI{Config: cfg}
    o := &cfg.Options

    fs := flag.NewFlagSet("websocat", flag.ContinueOnError)
    fs.SetOutput(stderr)
    fs.Usage = func() {
        fmt.Fprintln(stderr, "usage: websocat [flags] ADDR1 [ADDR2]")
        fmt.Fprintln(stderr, "With one address, it is connected to stdin/stdout. See --long-help for address types.")
        fs.PrintDefaults()
    }

    fs.String("config", "", "Path to YAML config file")
    fs.BoolVar(&cli.DumpSpec, "dump-spec", false, "Print the parsed address trees instead of running")
    fs.StringVar(&cli.DumpFormat, "dump-spec-format", "json", "Encoding for --dump-spec: json, cbor or proto")
    fs.BoolVar(&cli.LongHelp, "long-help", false, "List address types and aliases")
    fs.Var((*counter)(&cli.Verbose), "v", "More logging; repeat for debug")
    fs.BoolVar(&cli.Quiet, "q", false, "Log errors only")
    fs.StringVar(&cfg.Metrics.Listen, "metrics-listen", cfg.Metrics.Listen, "Serve prometheus metrics on this address")

    fs.BoolVar(&o.WebsocketTextMode, "t", o.WebsocketTextMode, "Send text WebSocket messages instead of binary")
    fs.BoolVar(&o.WebsocketTextMode, "text", o.WebsocketTextMode, "Same as -t")
    fs.StringVar(&o.WebsocketProtocol, "protocol", o.WebsocketProtocol, "WebSocket subprotocol to request")
    fs.StringVar(&o.Origin, "origin", o.Origin, "Origin header for WebSocket client requests")
    fs.Var((*lines)(&o.CustomHeaders), "H", "Extra \"Name: value\" request header; repeatable")
    fs.StringVar(&o.WSCURI, "ws-c-uri", o.WSCURI, "URI requested by ws-c:")
    fs.StringVar(&o.RestrictURI, "restrict-uri", o.RestrictURI, "Only accept WebSocket upgrades for this request URI")
    fs.BoolVar(&o.WebsocketDontClose, "no-close", o.WebsocketDontClose, "Do not send a WebSocket close frame on shutdown")
    fs.BoolVar(&o.Insecure, "k", o.Insecure, "Skip TLS certificate verification")

    fs.BoolVar(&o.Unidirectional, "u", o.Unidirectional, "Only copy from ADDR1 to ADDR2")
    fs.BoolVar(&o.UnidirectionalReverse, "U", o.UnidirectionalReverse, "Only copy from ADDR2 to ADDR1")
    fs.BoolVar(&o.ExitOnEOF, "E", o.ExitOnEOF, "End the session as soon as either direction reaches EOF")
    fs.BoolVar(&o.Oneshot, "oneshot", o.Oneshot, "Serve one connection then exit")
    fs.BoolVar(&o.OneMessage, "1", o.OneMessage, "Forward one message per direction then stop")
    fs.BoolVar(&o.OneMessage, "one-message", o.OneMessage, "Same as -1")

    fs.BoolVar(&o.UDPOneshotMode, "udp-oneshot", o.UDPOneshotMode, "udp-l: closes after its first reply")
    fs.BoolVar(&o.UnlinkUnixSocket, "unlink", o.UnlinkUnixSocket, "Remove a stale unix socket file before listening")
    execArgs := fs.Bool("exec-args", false, "Pass arguments after the addresses to exec:")

    fs.BoolVar(&o.NoAutoLinemode, "no-line", o.NoAutoLinemode, "Do not insert msg2line: automatically in text mode")
    fs.BoolVar(&o.LinemodeStripNewlines, "strip", o.LinemodeStripNewlines, "Strip line terminators from messages")
    fs.BoolVar(&o.LinemodeZeroTerminated, "null-terminated", o.LinemodeZeroTerminated, "Lines end with a zero byte instead of newline")
    fs.BoolVar(&o.LinemodeStrict, "strict", o.LinemodeStrict, "Drop incomplete lines and lines that do not fit the buffer instead of splitting them")

    fs.IntVar(&o.BufferSize, "B", o.BufferSize, "Copy buffer size in bytes")
    fs.IntVar(&o.BroadcastQueueLen, "broadcast-queue-len", o.BroadcastQueueLen, "Per-consumer queue length for broadcast:")
    fs.Var((*debtValue)(&o.ReadDebtHandling), "read-debt", "Handling of messages larger than the read buffer: silent, warn, error, drop")
    fs.DurationVar(&o.AutoreconnectDelay, "autoreconnect-delay", o.AutoreconnectDelay, "First retry delay for autoreconnect:")
    fs.DurationVar(&o.AutoreconnectMaxDelay, "autoreconnect-max-delay", o.AutoreconnectMaxDelay, "Upper bound on the autoreconnect: delay")

    if err := fs.Parse(args); err != nil { return nil, err }
    if cli.LongHelp { return cli, nil }

    pos := fs.Args()
    switch {
    case *execArgs && len(pos) >= 2:
        cli.Left, cli.Right = pos[0], pos[1]
        o.ExecArgs = append([]string(nil), pos[2:]...)
    case len(pos) == 1:
        cli.Left, cli.Right = "-", pos[0]
    case len(pos) == 2:
        cli.Left, cli.Right = pos[0], pos[1]
    default:
        fs.Usage()
        return nil, errUsage
    }
    if err := o.Validate(); err != nil { return nil, err }
    return cli, nil
}

var errUsage = errors.New("expected one or two addresses")

// configPath finds --config before the flag set exists, since the loaded
// file supplies the flag defaults.
func configPath(args []string) string {
    for i := 0; i < len(args); i++ {
        a := args[i]
        if a == "--" { break }
        name, val, hasVal := strings.Cut(strings.TrimLeft(a, "-"), "=")
        if !strings.HasPrefix(a, "-") || name != "config" { continue }
        if hasVal { return val }
        if i+1 < len(args) { return args[i+1] }
    }
    return ""
}

// counter is a boolean flag that counts its occurrences.
type counter int

func (c *counter) String() string   { return strconv.Itoa(int(*c)) }
func (c *counter) IsBoolFlag() bool { return true }
func (c *counter) Set(s string) error {
    v, err := strconv.ParseBool(s)
    if err != nil { return err }
    if v { *c++ }
    return nil
}

// lines is a repeatable string flag.
type lines []string

func (l *lines) String() string     { return strings.Join(*l, ", ") }
func (l *lines) Set(s string) error { *l = append(*l, s); return nil }

type debtValue peer.DebtHandling

func (d *debtValue) String() string { return string(*d) }
func (d *debtValue) Set(s string) error {
    h, err := peer.ParseDebtHandling(s)
    if err != nil { return err }
    *d = debtValue(h)
    return nil
}
