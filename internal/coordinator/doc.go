// Package coordinator decides when the operation queue drains.
//
// A Coordinator is Idle or Syncing. A drain pass starts only from Idle and
// only while connectivity is known to be up; triggers that arrive during a
// pass are dropped. Passes are started by:
//
//   - the periodic ticker (default every 30s)
//   - connectivity coming back (Connectivity.Changes delivering true)
//   - the application returning to the foreground
//   - a direct call to Sync
//
// Losing connectivity only flips the online flag; an in-flight pass runs to
// completion. Delivery failures never reach the code that enqueued the
// operation: they show up as queue depth and retry counts in Status and
// Queue.Pending.
package coordinator
