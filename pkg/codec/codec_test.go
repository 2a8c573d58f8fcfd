package codec

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func tree() map[string]any {
    return map[string]any{
        "class": "ws-u",
        "inner": map[string]any{"class": "tcp-l", "arg": "127.0.0.1:8080"},
        "multi": true,
    }
}

func TestRegistry(t *testing.T) {
    r, err := NewRegistry()
    require.NoError(t, err)
    assert.Equal(t, []string{"cbor", "json", "proto"}, r.Names())
    _, err = r.Get("yaml")
    assert.Error(t, err)
}

func TestEveryCodecKeepsTheTree(t *testing.T) {
    r, err := NewRegistry()
    require.NoError(t, err)
    for _, name := range r.Names() {
        t.Run(name, func(t *testing.T) {
            c, err := r.Get(name)
            require.NoError(t, err)
            b, err := c.Marshal(tree())
            require.NoError(t, err)
            var out map[string]any
            require.NoError(t, c.Unmarshal(b, &out))
            assert.Equal(t, "ws-u", out["class"])
            assert.Equal(t, true, out["multi"])
            inner, ok := out["inner"].(map[string]any)
            require.True(t, ok, "inner is %T", out["inner"])
            assert.Equal(t, "127.0.0.1:8080", inner["arg"])
        })
    }
}

func TestCBORIsCanonical(t *testing.T) {
    c, err := CBOR()
    require.NoError(t, err)
    a, err := c.Marshal(map[string]any{"b": 1, "a": 2})
    require.NoError(t, err)
    b, err := c.Marshal(map[string]any{"a": 2, "b": 1})
    require.NoError(t, err)
    assert.Equal(t, a, b)
}

func TestProtoRejectsNonMaps(t *testing.T) {
    _, err := Proto().Marshal([]string{"x"})
    assert.Error(t, err)
}
