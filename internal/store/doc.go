// Package store keeps the latest sensor readings and bridge health in memory.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [Reading]: Storage representation of one published sensor value
//   - [Health]: Snapshot of the scheduler's diagnostics
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers will miss updates rather than block the bridge).
package store
