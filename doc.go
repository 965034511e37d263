// Package blockweave provides a restart-tolerant coordinator that turns a
// user-selected region of a live web page into a generated presentational
// block, pushes it to a preview branch, and lets callers accept, reject,
// or iterate.
//
// Blockweave is designed as a library, not a service. Import it, configure
// a state store, connect the page agent bridge and the remote generation
// service, and drive everything through the coordinator's typed message
// protocol.
//
// # Quick Start
//
//	st := memory.New()
//	svc := remote.New("https://generate.example.com")
//	co := coordinator.New(st, svc,
//	    coordinator.WithBridge(bridge),
//	    coordinator.WithLogger(logger),
//	)
//	resp := co.Handle(ctx, &coordinator.GenerateBlock{...})
//
// # Architecture
//
// The coordinator owns the workflow state machine and is the only writer of
// the persisted WorkflowState. The host runtime may tear the coordinator
// down between any two messages; every stage transition is persisted before
// listeners are notified, so a fresh instance always resumes from a state
// consistent with "last stage known to have started".
//
// Each subsystem (state, remote, agent, wire, janitor) defines its own
// narrow contract. State store backends: Postgres (pgx), Bun, Redis, and
// Memory.
package blockweave
