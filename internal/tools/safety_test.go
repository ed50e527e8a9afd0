// Package tools provides tests for shared tool utilities.
package tools

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcp-minecraft/internal/server"
	"github.com/giantswarm/mcp-minecraft/internal/tools/testdata"
)

var mutatingOperations = []string{"enable_autosave", "disable_autosave", "rcon_command"}

func newServerContext(t *testing.T, opts ...server.Option) *server.ServerContext {
	t.Helper()
	opts = append([]server.Option{
		server.WithMinecraft(&testdata.MockMinecraft{}),
		server.WithLogger(&testdata.MockLogger{}),
	}, opts...)
	sc, err := server.NewServerContext(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

// TestCheckMutatingOperation_BlockedInReadOnlyMode verifies that mutating
// operations are blocked when read-only mode is enabled.
func TestCheckMutatingOperation_BlockedInReadOnlyMode(t *testing.T) {
	sc := newServerContext(t, server.WithReadOnly(true))

	for _, op := range mutatingOperations {
		t.Run(op+" is blocked", func(t *testing.T) {
			result := CheckMutatingOperation(sc, op)
			require.NotNil(t, result, "%s should be blocked in read-only mode", op)
			assert.True(t, result.IsError)
		})
	}
}

func TestCheckMutatingOperation_Message(t *testing.T) {
	sc := newServerContext(t, server.WithReadOnly(true))

	result := CheckMutatingOperation(sc, "disable_autosave")
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t,
		`Disable Autosave is not allowed in read-only mode (add "disable_autosave" to --allowed-operations to permit it)`,
		text.Text)
}

// TestCheckMutatingOperation_AllowedWhenWritable verifies that every operation
// passes when read-only mode is off.
func TestCheckMutatingOperation_AllowedWhenWritable(t *testing.T) {
	sc := newServerContext(t, server.WithReadOnly(false))

	for _, op := range mutatingOperations {
		t.Run(op+" is allowed", func(t *testing.T) {
			assert.Nil(t, CheckMutatingOperation(sc, op))
		})
	}
}

// TestCheckMutatingOperation_AllowedOperations verifies that operations listed
// in AllowedOperations pass in read-only mode and others do not.
func TestCheckMutatingOperation_AllowedOperations(t *testing.T) {
	sc := newServerContext(t,
		server.WithReadOnly(true),
		server.WithAllowedOperations([]string{"enable_autosave"}),
	)

	assert.Nil(t, CheckMutatingOperation(sc, "enable_autosave"))
	assert.NotNil(t, CheckMutatingOperation(sc, "disable_autosave"))
	assert.NotNil(t, CheckMutatingOperation(sc, "rcon_command"))
}
