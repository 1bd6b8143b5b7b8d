// Package store keeps the most recent value seen for each key.
//
// The publisher uses it to remember the latest event of every kind, so a
// dashboard or API client arriving mid-stream can show something before the
// next matching event is paced out.
//
// The main components are:
//
//   - [Store]: Interface defining the latest-value operations
//   - [MemoryStore]: In-memory implementation of Store
//   - [Entry]: A stored value with its key and update time
//
// Users of the hubbub library should not need to interact with this
// package directly.
package store
