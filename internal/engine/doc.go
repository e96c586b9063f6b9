// Package engine runs compiled searches against the store.
//
// A Task executes one search as a sequence of phases on a single reserved
// connection:
//
//  1. Scope: compile the matrix and check that its participant and
//     transcript filters select something
//  2. Match: run the compiled insert into a temporary scratch table
//  3. Backfill: assign word tokens to span-strategy rows
//  4. Dedup: drop rows repeating an earlier row's target
//  5. Promote: copy the rows into the durable result table, ranked by
//     speaker, transcript and match order
//  6. Filter: apply post-match filters in rank order
//
// Cancel interrupts the statement in flight. A cancelled search leaves no
// durable rows.
//
// Manager runs tasks on a worker pool and keeps them addressable by search
// id. Results pages through the durable rows of a finished search.
package engine
