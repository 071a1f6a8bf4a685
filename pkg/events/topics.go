package events

// Lifecycle topics.
const (
	TopicConnecting = "client:connecting"
	TopicOpen       = "client:open"
	TopicClose      = "client:close"
	TopicError      = "client:error"

	TopicStatesLoaded   = "states_loaded"
	TopicServicesLoaded = "services_loaded"
)

// Event topics.
const (
	TopicAll          = "events:all"
	TopicConfigUpdate = "events:config_update"
	TopicIntegration  = "integration"
)

// EventTopic returns the topic for every event of a type.
func EventTopic(eventType string) string {
	return "events:" + eventType
}

// EntityTopic returns the topic for events of a type about one entity.
func EntityTopic(eventType, entityID string) string {
	return "events:" + eventType + ":" + entityID
}
