// Package audit persists append-only denial events for reporting.
//
// The gate is the only writer. Events record who was denied, in which
// guild, attempting which command, and why, together with the role
// snapshots involved. Nothing in the access-check hot path ever reads
// them back.
package audit
