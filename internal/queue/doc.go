// Package queue implements the durable operation queue: an ordered list of
// pending remote mutations with per-operation retry bookkeeping.
//
// # Ordering
//
// Operations are delivered strictly in enqueue order. Dequeue only ever
// looks at the head: while the head is backing off, nothing behind it is
// eligible, whatever resource it targets.
//
// # Persistence
//
// The whole queue is one JSON array stored under <namespace>sync-queue.
// Every mutator writes the complete new snapshot before changing the
// in-memory state, so a rejected write (quota, I/O) leaves both untouched
// and a restart over the same medium reconstructs the queue exactly.
//
// # Retry
//
// A failed delivery increments the attempt count and pushes the head's
// eligible time out by min(max, base * 2^attempts), 1s doubling to 30s by
// default. Operations never expire; they retry until delivered or cleared.
package queue
