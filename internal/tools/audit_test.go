package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcp-minecraft/internal/correlate"
	"github.com/giantswarm/mcp-minecraft/internal/instrumentation"
	"github.com/giantswarm/mcp-minecraft/internal/logging"
	"github.com/giantswarm/mcp-minecraft/internal/server"
	"github.com/giantswarm/mcp-minecraft/internal/tools/testdata"
)

func argValue(args []interface{}, key string) interface{} {
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == key {
			return args[i+1]
		}
	}
	return nil
}

func TestWrapWithAuditLogging(t *testing.T) {
	tests := []struct {
		name       string
		handler    ToolHandler
		wantLevel  string
		wantStatus string
		wantErr    bool
		wantDetail string
	}{
		{
			name: "success",
			handler: func(context.Context, mcp.CallToolRequest, *server.ServerContext) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultText("ok"), nil
			},
			wantLevel:  "info",
			wantStatus: instrumentation.StatusSuccess,
		},
		{
			name: "error result",
			handler: func(context.Context, mcp.CallToolRequest, *server.ServerContext) (*mcp.CallToolResult, error) {
				return ErrorResult(correlate.ErrTimedOut), nil
			},
			wantLevel:  "warn",
			wantStatus: instrumentation.StatusError,
			wantDetail: "Minecraft did not respond in time.",
		},
		{
			name: "go error",
			handler: func(context.Context, mcp.CallToolRequest, *server.ServerContext) (*mcp.CallToolResult, error) {
				return nil, errors.New("encode failed")
			},
			wantLevel:  "warn",
			wantStatus: instrumentation.StatusError,
			wantErr:    true,
			wantDetail: "encode failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &testdata.MockLogger{}
			sc := newServerContext(t, server.WithLogger(logger))

			wrapped := WrapWithAuditLogging("minecraft_save_all", tt.handler, sc)
			_, err := wrapped(context.Background(), mcp.CallToolRequest{})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			entries := logger.Entries()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.wantLevel, entries[0].Level)
			assert.Equal(t, "minecraft_save_all", argValue(entries[0].Args, logging.KeyTool))
			assert.Equal(t, tt.wantStatus, argValue(entries[0].Args, logging.KeyStatus))
			assert.NotNil(t, argValue(entries[0].Args, logging.KeyDuration))
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, argValue(entries[0].Args, logging.KeyError))
			}
		})
	}
}

func TestWrapWithAuditLogging_PassesResultThrough(t *testing.T) {
	sc := newServerContext(t, server.WithInstrumentationProvider(nil))
	want := mcp.NewToolResultText("payload")

	wrapped := WrapWithAuditLogging("minecraft_list_players",
		func(context.Context, mcp.CallToolRequest, *server.ServerContext) (*mcp.CallToolResult, error) {
			return want, nil
		}, sc)

	got, err := wrapped(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestJSONResult(t *testing.T) {
	result, err := JSONResult(OperationResult{Operation: "save_all", Status: "ok"})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	text := result.Content[0].(mcp.TextContent).Text
	assert.JSONEq(t, `{"operation":"save_all","status":"ok"}`, text)

	_, err = JSONResult(make(chan int))
	assert.Error(t, err)
}
