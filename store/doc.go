// Package store documents the persistence backends for the coordinator's
// durable records. Each backend implements state.Store (and usually
// state.Lifecycle): Postgres (pgx), Bun, Redis, and Memory.
//
// The store holds exactly two logical records — the user Config and the
// WorkflowState projection — under host-provided durable storage with no
// versioning or migration scheme beyond table creation. PatchState is
// read-modify-write with last-write-wins semantics per record; the
// coordinator is expected to be the only writer.
package store
