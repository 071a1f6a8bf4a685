// Package snapshot holds the bridge's copy of the hub's entity states and
// service registry.
//
// The cache is written by the bulk load after each connect and by the event
// dispatcher for every state_changed event. Readers always receive deep
// copies, so a caller mutating a returned value never affects the cache or
// other readers.
//
// Each connection cycle reports its first non-empty bulk load once per kind
// through the OnLoaded callback; ResetLoaded re-arms the notification after a
// disconnect.
package snapshot
