// Package worker implements the four concrete coordination workers:
// participant collection, schedule optimization, venue search and calendar
// integration. Each embeds the base agent substrate, registers handlers for
// the message kinds it serves, and reports completion or failure back to
// the coordination engine over the bus.
package worker
