// Package service ties the lower-level packages into one client per
// configured hub.
//
// # HubClient
//
// HubClient owns the connection lifecycle for a single Home Assistant
// server. It handles:
//   - Dialing and authenticating through pkg/transport
//   - The administrator check after auth_ok
//   - Reconnecting through connection.Supervisor
//   - Replaying the desired event subscriptions on each new session
//   - Loading states, services and hub config after connect
//   - Keep-alive pings
//   - Publishing lifecycle and hub events on an events.Bus
//
// Example usage:
//
//	config := service.DefaultConfig()
//	config.BaseURL = "http://homeassistant.local:8123"
//	config.Credential = token
//
//	hub, err := service.NewHubClient(config)
//	hub.On(events.TopicAll, func(topic string, payload any) { ... })
//	if err := hub.Connect(ctx); err != nil { ... }
//	defer hub.Close()
//
// Commands sent while the client is not CONNECTED fail immediately with
// ErrNotConnected; nothing is queued or retried.
package service
