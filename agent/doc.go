// Package agent implements the base agent substrate shared by every
// coordination worker. A BaseAgent owns handler registration by message
// kind, dispatch with expiry dropping and contained handler errors, a
// pending outbox used before the bus is attached, and lifecycle broadcasts.
//
// Concrete workers embed BaseAgent and register handlers for the message
// kinds they care about:
//
//	a := agent.NewBase("scheduling", agent.WithLogger(logger))
//	a.Register(core.KindCommand, a.handleCommand)
//	a.Register(core.KindQuery, a.handleQuery)
package agent
