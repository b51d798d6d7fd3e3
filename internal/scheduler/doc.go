// Package scheduler is notifyd's job scheduling engine.
//
// # Overview
//
// The engine owns an in-memory registry mapping job id to a live
// trigger handle: a cron entry for recurring jobs, a single-fire timer
// for one-time jobs. Both handle kinds expose one uniform stop(), so
// cancel and replace never pick the wrong primitive.
//
// The durable job store is the source of truth; the registry is a
// rebuildable cache of "which jobs currently have a live timer".
// Reconcile() rebuilds it from the store at startup, before external
// requests are accepted.
//
// # Lifecycle per job
//
// Pending (registered) -> Firing (delivery enqueued) -> for one-time:
// Completed (removed from registry and store before the delivery
// attempt); for recurring: back to Pending until cancelled.
//
// # Concurrency
//
// One mutex covers the registry, the cron runner and the store write
// belonging to the same operation. Deliveries run on a worker pool and
// never hold that lock; cancellation prevents future fires but does
// not interrupt an in-flight delivery. Version counters per id make
// timer callbacks from replaced or cancelled jobs no-ops.
package scheduler
