// Package remind computes reminder instants for action items and runs the
// scan loop that dispatches them. Scheduling is idempotent per (task, slot)
// and dispatch is claimed through the store so concurrent daemons send each
// reminder at most once.
package remind
