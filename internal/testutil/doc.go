// Package testutil provides fluent builders for constructing domain
// fixtures in tests. It is internal on purpose; production code never
// fabricates events or participants this way.
package testutil
