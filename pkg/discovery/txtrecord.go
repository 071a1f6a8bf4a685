package discovery

import (
	"fmt"
	"strings"
)

// TXT record keys advertised by hubs.
const (
	TXTKeyBaseURL             = "base_url"
	TXTKeyInternalURL         = "internal_url"
	TXTKeyExternalURL         = "external_url"
	TXTKeyVersion             = "version"
	TXTKeyUUID                = "uuid"
	TXTKeyLocationName        = "location_name"
	TXTKeyRequiresAPIPassword = "requires_api_password"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		key, value, found := strings.Cut(s, "=")
		if key == "" {
			continue
		}
		if !found {
			// boolean flag
			value = ""
		}
		txt[key] = value
	}
	return txt
}

// DecodeHubTXT parses the TXT records of a hub advertisement into svc.
// A record without any URL and without a version is not a hub.
func DecodeHubTXT(txt TXTRecordMap, svc *HubService) error {
	svc.BaseURL = txt[TXTKeyBaseURL]
	svc.InternalURL = txt[TXTKeyInternalURL]
	svc.ExternalURL = txt[TXTKeyExternalURL]
	svc.Version = txt[TXTKeyVersion]
	svc.UUID = txt[TXTKeyUUID]
	svc.LocationName = txt[TXTKeyLocationName]
	svc.RequiresAPIPassword = parseBool(txt[TXTKeyRequiresAPIPassword])

	if svc.BaseURL == "" && svc.InternalURL == "" && svc.ExternalURL == "" && svc.Version == "" {
		return fmt.Errorf("%w: %s or %s", ErrMissingRequired, TXTKeyBaseURL, TXTKeyVersion)
	}
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	}
	return false
}
