// Package group manages Megolm sessions for rooms.
//
// Each room has at most one outbound session, guarded by a room lock. Inbound sessions
// are keyed by room, sender curve key and session id and guarded by their own lock.
// No operation holds more than one lock at a time: Distribute snapshots the outbound
// session, encrypts the room key for each device through the device manager with the
// room lock released, and re-locks only to record which devices were covered.
//
// A cancelled context is returned as ctx.Err() itself, never wrapped in a store or
// session kind.
package group
