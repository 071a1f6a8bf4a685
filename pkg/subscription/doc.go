// Package subscription multiplexes local event interest onto hub
// subscriptions.
//
// Local flows ask for event types; the Multiplexer keeps exactly one hub
// subscription per type, always including state_changed and the integration
// housekeeping type. Requesting the wildcard token collapses everything into
// a single subscription to all events.
//
// # Convergence
//
// SetDesired computes
//
//	toAdd    = desired - active
//	toRemove = active - desired
//
// and issues one subscribe or unsubscribe per member, so consecutive calls
// cost exactly the symmetric difference of the two desired sets. Calling it
// twice with the same set costs nothing.
//
// # Lifecycle
//
// Hub subscriptions die with the socket. The desired set survives; on
// disconnect Reset forgets the active bookkeeping and on the next session
// Replay subscribes the desired set again.
package subscription
