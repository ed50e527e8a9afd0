// Package management implements the game server operations exposed to
// clients: SaveAll, ListPlayers, EnableAutomaticSave, DisableAutomaticSave,
// ListUsers, RCONCommand and Backup.
//
// Console operations run through the correlator using a fixed policy per
// operation (see DefaultPolicies). Save operations use a short acknowledgement
// window followed by a longer completion window. Policies can be overridden
// from a YAML file, but only for the operations listed in the table.
//
// ListUsers and RCONCommand use RCON, whose request ids make replies exact.
//
// Every operation opens a management.<op> span, records
// minecraft_operations_total and minecraft_operation_duration_seconds, and
// logs its outcome with the operation attribute.
package management
