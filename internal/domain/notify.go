package domain

// Broadcaster is the subscription registry plus notification publisher for
// real-time occupancy updates. A single-instance in-memory hub and a
// broker-backed implementation both satisfy this contract.
//
// Delivery is at-most-once and best-effort: a slow or dead connection must
// never block delivery to others, and Publish must never block or fail the
// reserve/cancel operation that triggered it. Connections that join after a
// publish do not receive it; there is no replay.
type Broadcaster interface {
	// Register adds a connection and returns its delivery channel together
	// with a cancel function that removes the connection and all of its
	// subscriptions. The channel is closed by cancel.
	Register(connID string) (<-chan Occupancy, func())
	// Join subscribes the connection to the event's occupancy topic. Idempotent.
	Join(connID, eventID string)
	// Leave unsubscribes the connection from the event's topic. Idempotent.
	Leave(connID, eventID string)
	// Publish delivers the occupancy to every connection currently subscribed
	// to the event.
	Publish(eventID string, occ Occupancy)
	// Close releases broadcaster resources (e.g. a broker subscription loop).
	Close() error
}
