// Package testdata provides mock implementations for testing the tool packages.
package testdata

import (
	"context"
	"io"
	"sync"

	"github.com/giantswarm/mcp-minecraft/internal/backup"
	"github.com/giantswarm/mcp-minecraft/internal/management"
	"github.com/giantswarm/mcp-minecraft/internal/server"
)

// Compile-time interface compliance checks.
var (
	_ server.Minecraft = (*MockMinecraft)(nil)
	_ server.Logger    = (*MockLogger)(nil)
)

// MockMinecraft implements server.Minecraft. Every method records its name
// and returns Err when set.
type MockMinecraft struct {
	Err          error
	Players      *management.PlayerList
	RCONResponse string
	// BackupData is written to the destination by Backup.
	BackupData []byte

	mu       sync.Mutex
	calls    []string
	commands []string
}

func (m *MockMinecraft) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

// Calls returns the operations invoked so far, in order.
func (m *MockMinecraft) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Commands returns the RCON commands received so far.
func (m *MockMinecraft) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

func (m *MockMinecraft) SaveAll(context.Context) error {
	m.record(management.OpSaveAll)
	return m.Err
}

func (m *MockMinecraft) DisableAutomaticSave(context.Context) error {
	m.record(management.OpDisableAutoSave)
	return m.Err
}

func (m *MockMinecraft) EnableAutomaticSave(context.Context) error {
	m.record(management.OpEnableAutoSave)
	return m.Err
}

func (m *MockMinecraft) ListPlayers(context.Context) (*management.PlayerList, error) {
	m.record(management.OpListPlayers)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.players(), nil
}

func (m *MockMinecraft) ListUsers(context.Context) (*management.PlayerList, error) {
	m.record(management.OpListUsers)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.players(), nil
}

func (m *MockMinecraft) players() *management.PlayerList {
	if m.Players != nil {
		return m.Players
	}
	return &management.PlayerList{Players: []management.Player{}}
}

func (m *MockMinecraft) RCONCommand(_ context.Context, command string) (string, error) {
	m.record(management.OpRCONCommand)
	m.mu.Lock()
	m.commands = append(m.commands, command)
	m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	return m.RCONResponse, nil
}

func (m *MockMinecraft) Backup(_ context.Context, w io.Writer) (backup.Stats, error) {
	m.record(management.OpBackup)
	if m.Err != nil {
		return backup.Stats{}, m.Err
	}
	n, err := w.Write(m.BackupData)
	return backup.Stats{Files: 1, Bytes: int64(n)}, err
}

// LogEntry is one call recorded by MockLogger.
type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// MockLogger implements server.Logger and keeps every entry.
type MockLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (m *MockLogger) log(level, msg string, args []interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, LogEntry{Level: level, Msg: msg, Args: args})
}

// Entries returns the recorded log entries.
func (m *MockLogger) Entries() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LogEntry(nil), m.entries...)
}

func (m *MockLogger) Info(msg string, args ...interface{})  { m.log("info", msg, args) }
func (m *MockLogger) Debug(msg string, args ...interface{}) { m.log("debug", msg, args) }
func (m *MockLogger) Warn(msg string, args ...interface{})  { m.log("warn", msg, args) }
func (m *MockLogger) Error(msg string, args ...interface{}) { m.log("error", msg, args) }

// With implements server.Logger. Fields are dropped.
func (m *MockLogger) With(_ ...interface{}) server.Logger {
	return m
}
