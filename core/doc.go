// Package core provides the foundational domain types, interfaces and
// contracts used by PlanMesh. It defines the core abstractions for:
//
//   - Messages (typed envelopes exchanged between agents)
//   - Agents (status lifecycle, capabilities, metrics)
//   - Sessions (the stateful record of one coordination run: phases,
//     checkpoints, error and activity logs)
//   - Failures (a closed taxonomy for fallible external operations)
//   - Pluggable stores for sessions and documents, plus the message bus
//
// The package intentionally keeps implementation concerns (persistence,
// engine orchestration, concrete workers) out of scope, exposing small
// interfaces to enable custom backends and extensions.
package core
