package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Frame types exchanged during the auth phase.
const (
	TypeAuthRequired = "auth_required"
	TypeAuth         = "auth"
	TypeAuthOK       = "auth_ok"
	TypeAuthInvalid  = "auth_invalid"
)

// Frame types exchanged after authentication.
const (
	TypeResult = "result"
	TypeEvent  = "event"
	TypePing   = "ping"
	TypePong   = "pong"
)

// Command types understood by the hub.
const (
	CmdSubscribeEvents    = "subscribe_events"
	CmdUnsubscribeEvents  = "unsubscribe_events"
	CmdGetStates          = "get_states"
	CmdGetServices        = "get_services"
	CmdGetConfig          = "get_config"
	CmdCallService        = "call_service"
	CmdCurrentUser        = "auth/current_user"
	CmdPing               = "ping"
	CmdIntegrationVersion = "nodered/version"
)

// Event types with special meaning to the bridge.
const (
	// EventStateChanged carries entity state deltas.
	EventStateChanged = "state_changed"

	// EventIntegration is the companion integration housekeeping event.
	// It is never forwarded to subscribers.
	EventIntegration = "nodered"

	EventCoreConfigUpdated = "core_config_updated"
	EventComponentLoaded   = "component_loaded"
	EventServiceRegistered = "service_registered"
	EventServiceRemoved    = "service_removed"

	// AllEvents is the wildcard token meaning every event type.
	AllEvents = "__ALL__"
)

// IntegrationComponent is the component name the companion integration
// registers with the hub.
const IntegrationComponent = "nodered"

// Integration event sub-types.
const (
	IntegrationLoaded   = "loaded"
	IntegrationUnloaded = "unloaded"
)

// HeartbeatData is the event payload the hub uses as a keep-alive marker.
const HeartbeatData = "ping"

// AuthMessage is the credential frame sent in response to auth_required.
// Exactly one of AccessToken and APIPassword is set.
type AuthMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token,omitempty"`
	APIPassword string `json:"api_password,omitempty"`
}

// NewAuthMessage builds the auth frame. Legacy hubs expect api_password.
func NewAuthMessage(credential string, legacy bool) AuthMessage {
	msg := AuthMessage{Type: TypeAuth}
	if legacy {
		msg.APIPassword = credential
	} else {
		msg.AccessToken = credential
	}
	return msg
}

// Frame is the envelope of every message received from the hub.
type Frame struct {
	ID        uint64          `json:"id,omitempty"`
	Type      string          `json:"type"`
	HAVersion string          `json:"ha_version,omitempty"`
	Message   string          `json:"message,omitempty"`
	Success   bool            `json:"success,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *ErrorInfo      `json:"error,omitempty"`
	Event     *EventMessage   `json:"event,omitempty"`
}

// IsResult reports whether the frame answers a command.
func (f *Frame) IsResult() bool {
	return f.Type == TypeResult || f.Type == TypePong
}

// ErrorInfo describes a failed command result.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EventMessage is a hub event as delivered on a subscription.
type EventMessage struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Origin    string          `json:"origin,omitempty"`
	TimeFired time.Time       `json:"time_fired"`
	Context   *Context        `json:"context,omitempty"`
}

// Context identifies the origin of a state change or event.
type Context struct {
	ID       string  `json:"id"`
	ParentID *string `json:"parent_id"`
	UserID   *string `json:"user_id"`
}

// Command is an outgoing command frame. The "id" key is assigned by the
// sender; callers only fill "type" and the command fields.
type Command map[string]any

// Type returns the command type or an empty string.
func (c Command) Type() string {
	t, _ := c["type"].(string)
	return t
}

// Validate checks that the command names a type.
func (c Command) Validate() error {
	if c.Type() == "" {
		return fmt.Errorf("command has no type")
	}
	return nil
}

// SubscribeEvents builds a subscribe_events command. An empty event type or
// AllEvents subscribes to every event.
func SubscribeEvents(eventType string) Command {
	cmd := Command{"type": CmdSubscribeEvents}
	if eventType != "" && eventType != AllEvents {
		cmd["event_type"] = eventType
	}
	return cmd
}

// UnsubscribeEvents builds an unsubscribe_events command.
func UnsubscribeEvents(subscriptionID uint64) Command {
	return Command{"type": CmdUnsubscribeEvents, "subscription": subscriptionID}
}

// CallService builds a call_service command.
func CallService(domain, service string, data map[string]any) Command {
	cmd := Command{
		"type":    CmdCallService,
		"domain":  domain,
		"service": service,
	}
	if len(data) > 0 {
		cmd["service_data"] = data
	}
	return cmd
}

// Simple builds a command without fields.
func Simple(cmdType string) Command {
	return Command{"type": cmdType}
}

// StateChangedData is the data payload of a state_changed event.
type StateChangedData struct {
	EntityID string       `json:"entity_id"`
	OldState *EntityState `json:"old_state"`
	NewState *EntityState `json:"new_state"`
}

// IntegrationData is the data payload of the integration event.
type IntegrationData struct {
	Type    string `json:"type"`
	Version any    `json:"version,omitempty"`
}

// CurrentUser is the result of auth/current_user.
type CurrentUser struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsOwner bool   `json:"is_owner"`
	IsAdmin bool   `json:"is_admin"`
}

// HubConfig is the subset of get_config the bridge relies on.
type HubConfig struct {
	Components   []string `json:"components"`
	Version      string   `json:"version"`
	LocationName string   `json:"location_name"`
	TimeZone     string   `json:"time_zone"`
	State        string   `json:"state,omitempty"`
}

// HasComponent reports whether the hub has loaded the named component.
func (c *HubConfig) HasComponent(name string) bool {
	for _, comp := range c.Components {
		if comp == name {
			return true
		}
	}
	return false
}

// IntegrationVersionResult is the result of the integration version query.
type IntegrationVersionResult struct {
	Version any `json:"version"`
}
