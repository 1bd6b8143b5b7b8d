// Package fanout delivers values to a dynamic set of subscribers.
//
// A [Hub] keeps one mailbox per subscriber. Broadcasting copies the current
// subscriber set and appends to each mailbox, never waiting on delivery.
// Each mailbox is drained by its own goroutine in FIFO order.
package fanout
