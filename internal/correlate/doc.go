// Package correlate matches console commands to the log lines they cause.
//
// The game server's stdin/stdout protocol carries no request identifiers. A
// Correlator therefore subscribes to the log broadcast, submits the command to
// the dispatch queue, and walks an ordered list of phases. Each phase is a
// regular expression with its own timeout. Non-matching lines are ignored. A
// matching line merges its named groups into the result and advances to the
// next phase.
//
// Save operations use two phases: a short window for the acknowledgement that
// the operation started, then a longer window for its completion.
//
// # Known limitation
//
// Concurrent commands of the same kind can cross-talk. A reply line produced
// for one caller's "list" satisfies every in-flight correlation waiting for
// the same pattern, because each correlation reads its own copy of the
// broadcast. The correlation id attached to logs and spans identifies an
// execution; it is not sent to the game server. Callers that need exact
// request/reply pairing should use the RCON client instead.
package correlate
