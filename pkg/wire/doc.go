// Package wire defines the JSON frame types of the Home Assistant WebSocket API.
//
// All frames are JSON objects carrying a "type" field. After the socket is
// opened the hub sends auth_required, the client answers with an auth frame
// and the hub replies with auth_ok or auth_invalid.
//
// # Commands and Results
//
// Every command carries a client-chosen integer "id". The hub answers with a
// result frame using the same id:
//
//	{"id": 5, "type": "result", "success": true, "result": ...}
//	{"id": 5, "type": "result", "success": false, "error": {"code": "...", "message": "..."}}
//
// # Events
//
// A subscribe_events command turns its id into a subscription id. Every event
// delivered for that subscription arrives as:
//
//	{"id": 5, "type": "event", "event": {"event_type": "...", "data": {...}}}
//
// Omitting event_type in subscribe_events subscribes to every event type.
package wire
