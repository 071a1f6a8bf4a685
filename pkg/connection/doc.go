// Package connection provides connection lifecycle management for a hub.
//
// This package handles:
//   - Connection state tracking with observable transitions
//   - Supervised connect attempts with a fixed retry interval
//   - Classification of terminal versus retryable failures
//
// # States
//
//	DISCONNECTED --> CONNECTING --> CONNECTED --> DISCONNECTED
//	                     |              |
//	                     +----> ERROR <-+
//
// ERROR is a notification state: the supervisor leaves it with a new
// attempt unless the cause was terminal.
//
// # Reconnection Strategy
//
// The first attempt waits an initial delay (5s, skippable). After a failed
// attempt or a closed session exactly one retry is scheduled after 5
// seconds. Retries continue indefinitely. Invalid credentials, a missing or
// mismatched host URL, and a non-admin user stop the supervisor.
package connection
