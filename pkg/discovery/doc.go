// Package discovery finds hubs on the local network over mDNS/DNS-SD.
//
// Hubs advertise the _home-assistant._tcp service. The TXT record carries
// the URLs the hub is reachable under:
//
//	base_url, internal_url, external_url   reachable URLs (any may be empty)
//	version                                hub version
//	uuid                                   installation id
//	location_name                          user-facing name
//	requires_api_password                  "True" for legacy password auth
//
// Instances seen on several interfaces are merged into one HubService whose
// address list grows and shrinks as interfaces come and go.
package discovery
