// Package events delivers hub events to local listeners.
//
// A Bus maps topics to ordered listener lists. Topics are created when the
// first listener is added and removed with the last one. Publish copies the
// listener list under the lock and calls the listeners outside it, so a
// listener may remove itself (or add others) while being called.
//
// A Dispatcher consumes event frames in arrival order on a single goroutine.
// For each frame it updates the snapshot cache, then publishes to
//
//	events:<type>
//	events:<type>:<entity_id>   (only when the event names an entity)
//	events:all
//
// Companion integration events are consumed by the dispatcher and reported
// on the integration topic instead.
package events
