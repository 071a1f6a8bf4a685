package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// Service constants.
const (
	ServiceType = "_home-assistant._tcp"
	Domain      = "local."

	// BrowseTimeout is the default bound for FindFirst.
	BrowseTimeout = 10 * time.Second
)

// Discovery errors.
var (
	ErrNotFound        = errors.New("no hub found")
	ErrMissingRequired = errors.New("missing required TXT record")
)

// HubService is a discovered hub instance.
type HubService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	BaseURL             string
	InternalURL         string
	ExternalURL         string
	Version             string
	UUID                string
	LocationName        string
	RequiresAPIPassword bool
}

// URL returns the best URL to connect to: the internal URL, then the base
// URL, then one built from the first address and port.
func (s *HubService) URL() string {
	switch {
	case s.InternalURL != "":
		return s.InternalURL
	case s.BaseURL != "":
		return s.BaseURL
	case len(s.Addresses) > 0 && s.Port != 0:
		return "http://" + net.JoinHostPort(s.Addresses[0], strconv.Itoa(int(s.Port)))
	case s.Host != "" && s.Port != 0:
		return "http://" + net.JoinHostPort(trimDot(s.Host), strconv.Itoa(int(s.Port)))
	default:
		return ""
	}
}

func trimDot(host string) string {
	if n := len(host); n > 0 && host[n-1] == '.' {
		return host[:n-1]
	}
	return host
}
