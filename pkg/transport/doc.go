// Package transport implements the hub WebSocket transport and auth handshake.
//
// The transport layer handles:
//   - Deriving the socket URL from the hub base URL
//   - TLS settings (certificate validation can be disabled per server)
//   - The auth exchange (auth_required / auth / auth_ok | auth_invalid)
//   - Frame read/write on the established socket
//   - Keep-alive ping monitoring
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      JSON frames (wire)        │
//	├────────────────────────────────┤
//	│   WebSocket /api/websocket     │
//	├────────────────────────────────┤
//	│     TLS (wss) or plain (ws)    │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # Failure Classes
//
// Dial returns one of the package sentinel errors. ErrCannotConnect and
// ErrConnectionLost are retryable; ErrInvalidAuth, ErrHostNotConfigured and
// ErrInsecureSchemeMismatch are terminal. Use IsRetryable to classify.
package transport
