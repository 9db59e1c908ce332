// Package bus provides the in-memory message bus used to route typed
// messages between agents. Direct messages go to exactly one subscriber;
// broadcast messages (empty recipient) fan out to every subscriber except
// the sender. Responses returned by a dispatch handler are published back
// onto the bus automatically.
package bus
