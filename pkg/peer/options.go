package peer

import (
    "fmt"
    "strings"
    "time"
)

// Options is the run-wide configuration. It is built once at startup and
// shared by pointer; nothing mutates it afterwards.
type Options struct {
    WebsocketTextMode    bool     `mapstructure:"websocket_text_mode"`
    WebsocketProtocol    string   `mapstructure:"websocket_protocol"`
    WebsocketDontClose   bool     `mapstructure:"websocket_dont_close"`
    Origin               string   `mapstructure:"origin"`
    // CustomHeaders are "Name: value" lines added to WebSocket client requests.
    CustomHeaders        []string `mapstructure:"custom_headers"`
    WSCURI               string   `mapstructure:"ws_c_uri"`
    RestrictURI          string   `mapstructure:"restrict_uri"`
    Insecure             bool     `mapstructure:"insecure"`

    Unidirectional        bool `mapstructure:"unidirectional"`
    UnidirectionalReverse bool `mapstructure:"unidirectional_reverse"`
    ExitOnEOF             bool `mapstructure:"exit_on_eof"`
    Oneshot               bool `mapstructure:"oneshot"`
    OneMessage            bool `mapstructure:"one_message"`

    UDPOneshotMode   bool     `mapstructure:"udp_oneshot_mode"`
    UnlinkUnixSocket bool     `mapstructure:"unlink_unix_socket"`
    ExecArgs         []string `mapstructure:"exec_args"`

    LinemodeStripNewlines  bool `mapstructure:"linemode_strip_newlines"`
    LinemodeZeroTerminated bool `mapstructure:"linemode_zero_terminated"`
    // LinemodeStrict drops incomplete lines and lines longer than the buffer.
    LinemodeStrict         bool `mapstructure:"linemode_strict"`
    NoAutoLinemode         bool `mapstructure:"no_auto_linemode"`

    BufferSize        int          `mapstructure:"buffer_size"`
    BroadcastQueueLen int          `mapstructure:"broadcast_queue_len"`
    ReadDebtHandling  DebtHandling `mapstructure:"read_debt_handling"`

    AutoreconnectDelay    time.Duration `mapstructure:"autoreconnect_delay"`
    AutoreconnectMaxDelay time.Duration `mapstructure:"autoreconnect_max_delay"`
}

// Default returns Options populated with the stock values.
func Default() *Options {
    return &Options{
        WSCURI:                "ws://0.0.0.0/",
        BufferSize:            65536,
        BroadcastQueueLen:     16,
        ReadDebtHandling:      DebtSilent,
        AutoreconnectDelay:    20 * time.Millisecond,
        AutoreconnectMaxDelay: 5 * time.Second,
    }
}

// Validate normalizes zero values and rejects out-of-range settings.
func (o *Options) Validate() error {
    if o.BufferSize <= 0 { return fmt.Errorf("buffer_size must be positive, got %d", o.BufferSize) }
    if o.BroadcastQueueLen <= 0 { return fmt.Errorf("broadcast_queue_len must be positive, got %d", o.BroadcastQueueLen) }
    h, err := ParseDebtHandling(string(o.ReadDebtHandling))
    if err != nil { return err }
    o.ReadDebtHandling = h
    if o.AutoreconnectDelay < 0 || o.AutoreconnectMaxDelay < 0 {
        return fmt.Errorf("autoreconnect delays cannot be negative")
    }
    if o.AutoreconnectMaxDelay > 0 && o.AutoreconnectMaxDelay < o.AutoreconnectDelay {
        o.AutoreconnectMaxDelay = o.AutoreconnectDelay
    }
    if o.WSCURI == "" { o.WSCURI = "ws://0.0.0.0/" }
    return nil
}

// DebtHandling is the policy applied when a message does not fit the reader's
// buffer and would have to be split across reads.
type DebtHandling string

const (
    DebtSilent DebtHandling = "silent"
    DebtWarn   DebtHandling = "warn"
    DebtError  DebtHandling = "error"
    DebtDrop   DebtHandling = "drop"
)

// ParseDebtHandling accepts the policy names case-insensitively; empty means silent.
func ParseDebtHandling(s string) (DebtHandling, error) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "", "silent":
        return DebtSilent, nil
    case "warn", "warning":
        return DebtWarn, nil
    case "error", "disconnect":
        return DebtError, nil
    case "drop", "drop-message":
        return DebtDrop, nil
    default:
        return "", fmt.Errorf("invalid read debt handling %q (want silent, warn, error or drop)", s)
    }
}
