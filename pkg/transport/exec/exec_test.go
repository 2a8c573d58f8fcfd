package exec

import (
    "context"
    "io"
    "runtime"
    "strings"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/jw3/websocat/pkg/peer"
)

func TestShellRoundTrip(t *testing.T) {
    if runtime.GOOS == "windows" { t.Skip("needs sh") }
    p, err := (&peer.Node{Class: Shell, Arg: "tr a-z A-Z"}).Construct(peer.ConstructParams{}).Resolve(context.Background())
    require.NoError(t, err)
    _, err = p.W.Write([]byte("hello\n"))
    require.NoError(t, err)
    require.NoError(t, p.W.Close())
    got, err := io.ReadAll(p.R)
    require.NoError(t, err)
    assert.Equal(t, "HELLO\n", string(got))
    require.NoError(t, p.R.Close())
}

func TestEnvironmentFromLeftSide(t *testing.T) {
    if runtime.GOOS == "windows" { t.Skip("needs sh") }
    l2r := &peer.LeftToRight{}
    l2r.SetURI("/chat?room=1")
    l2r.SetClient("127.0.0.1:5555")
    cp := peer.ConstructParams{L2R: l2r, Role: peer.ReadFrom}
    p, err := (&peer.Node{Class: Shell, Arg: `echo "$WEBSOCAT_URI $WEBSOCAT_CLIENT"`}).Construct(cp).Resolve(context.Background())
    require.NoError(t, err)
    defer p.Close()
    got, err := io.ReadAll(p.R)
    require.NoError(t, err)
    assert.Equal(t, "/chat?room=1 127.0.0.1:5555", strings.TrimSpace(string(got)))
}

func TestExecArgs(t *testing.T) {
    if runtime.GOOS == "windows" { t.Skip("needs echo") }
    opts := peer.Default()
    opts.ExecArgs = []string{"-n", "a", "b"}
    p, err := (&peer.Node{Class: Exec, Arg: "echo"}).Construct(peer.ConstructParams{Options: opts}).Resolve(context.Background())
    require.NoError(t, err)
    defer p.Close()
    got, err := io.ReadAll(p.R)
    require.NoError(t, err)
    assert.Equal(t, "a b", string(got))
}

func TestMissingProgram(t *testing.T) {
    _, err := (&peer.Node{Class: Exec, Arg: "definitely-not-a-real-program-xyz"}).Construct(peer.ConstructParams{}).Resolve(context.Background())
    assert.ErrorIs(t, err, peer.ErrConnectFailure)
}
