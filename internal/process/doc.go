// Package process supervises the game server child process.
//
// A Supervisor owns exactly one child. It exposes the child's stdin as a
// serialized line writer and its stdout as a single lazy sequence of LogLine
// values. Each line is mirrored verbatim to Config.Mirror before it is handed
// to the sequence, so the server console stays visible to whoever runs the
// supervisor.
//
// Lines is not restartable: once the child exits, or stdout fails, the channel
// is closed for good. Callers that need fan-out should pump it into a
// broadcast.Hub rather than read it directly.
//
// Writes are refused with ErrProcessUnavailable after the child exits or its
// stdin pipe breaks; the supervisor never respawns.
package process
