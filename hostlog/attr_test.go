package hostlog_test

import (
	"testing"

	"github.com/jrsteele09/go-workflow-bridge/hostlog"
	"github.com/stretchr/testify/require"
)

type hostArgs struct {
	Input  map[string]any
	Logger any
}

type methodArgs struct{}

func (methodArgs) Input() map[string]any {
	return map[string]any{"action": "revoke"}
}

type panickingArgs struct{}

func (panickingArgs) Input() map[string]any {
	panic("host object broken")
}

func TestAttr(t *testing.T) {
	input := map[string]any{"access_token": "pat_x"}

	v, ok := hostlog.Attr(map[string]any{"input": input}, "input")
	require.True(t, ok)
	require.Equal(t, input, v)

	v, ok = hostlog.Attr(&hostArgs{Input: input}, "input")
	require.True(t, ok)
	require.Equal(t, input, v)

	v, ok = hostlog.Attr(methodArgs{}, "input")
	require.True(t, ok)
	require.Equal(t, "revoke", v.(map[string]any)["action"])

	var nilArgs *hostArgs
	for _, target := range []any{nil, nilArgs, hostArgs{}, "string", 42, map[int]any{1: "x"}, panickingArgs{}} {
		_, ok := hostlog.Attr(target, "input")
		require.False(t, ok, "%T", target)
	}

	_, ok = hostlog.Attr(hostArgs{Input: input}, "logger")
	require.False(t, ok, "nil interface field")
}
