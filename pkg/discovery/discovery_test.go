package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hubEntry(instance string, ips ...string) *zeroconf.ServiceEntry {
	e := &zeroconf.ServiceEntry{}
	e.Instance = instance
	e.HostName = "hass.local."
	e.Port = 8123
	e.Text = []string{"version=2024.1.0", "base_url=http://hass.local:8123", "location_name=Home", "requires_api_password=False"}
	for _, ip := range ips {
		parsed := net.ParseIP(ip)
		if parsed.To4() != nil {
			e.AddrIPv4 = append(e.AddrIPv4, parsed)
		} else {
			e.AddrIPv6 = append(e.AddrIPv6, parsed)
		}
	}
	return e
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"a=1", "b=x=y", "flag", "", "=orphan"})
	assert.Equal(t, TXTRecordMap{"a": "1", "b": "x=y", "flag": ""}, txt)
}

func TestDecodeHubTXT(t *testing.T) {
	var svc HubService
	err := DecodeHubTXT(TXTRecordMap{
		TXTKeyBaseURL:             "http://hass.local:8123",
		TXTKeyInternalURL:         "http://192.168.1.10:8123",
		TXTKeyExternalURL:         "https://home.example.com",
		TXTKeyVersion:             "2024.1.0",
		TXTKeyUUID:                "abc123",
		TXTKeyLocationName:        "Home",
		TXTKeyRequiresAPIPassword: "True",
	}, &svc)
	require.NoError(t, err)

	assert.Equal(t, "2024.1.0", svc.Version)
	assert.Equal(t, "abc123", svc.UUID)
	assert.Equal(t, "Home", svc.LocationName)
	assert.True(t, svc.RequiresAPIPassword)
	assert.Equal(t, "http://192.168.1.10:8123", svc.URL())

	var empty HubService
	assert.ErrorIs(t, DecodeHubTXT(TXTRecordMap{"other": "x"}, &empty), ErrMissingRequired)
}

func TestHubServiceURL(t *testing.T) {
	tests := []struct {
		name string
		svc  HubService
		want string
	}{
		{"internal", HubService{InternalURL: "http://i", BaseURL: "http://b"}, "http://i"},
		{"base", HubService{BaseURL: "http://b"}, "http://b"},
		{"address", HubService{Addresses: []string{"10.0.0.5"}, Port: 8123}, "http://10.0.0.5:8123"},
		{"ipv6", HubService{Addresses: []string{"fe80::1"}, Port: 8123}, "http://[fe80::1]:8123"},
		{"host", HubService{Host: "hass.local.", Port: 8123}, "http://hass.local:8123"},
		{"nothing", HubService{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.svc.URL())
		})
	}
}

func TestAggregateMergesInstances(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	out := make(chan *HubService, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		aggregate(ctx, entries, removed, out)
	}()

	entries <- hubEntry("Home", "192.168.1.10")
	entries <- hubEntry("Home", "fe80::1")
	notHub := &zeroconf.ServiceEntry{}
	notHub.Instance = "printer"
	entries <- notHub
	removed <- hubEntry("Home", "192.168.1.10")
	close(entries)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("aggregate did not stop")
	}
	close(out)

	var got []*HubService
	for svc := range out {
		got = append(got, svc)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "Home", got[0].InstanceName)
	assert.Equal(t, uint16(8123), got[0].Port)
	assert.Equal(t, []string{"fe80::1"}, got[0].Addresses)
}

func TestFirst(t *testing.T) {
	results := make(chan *HubService, 1)
	results <- &HubService{InstanceName: "Home"}
	svc, err := first(context.Background(), results)
	require.NoError(t, err)
	assert.Equal(t, "Home", svc.InstanceName)

	closed := make(chan *HubService)
	close(closed)
	_, err = first(context.Background(), closed)
	assert.ErrorIs(t, err, ErrNotFound)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = first(ctx, make(chan *HubService))
	assert.ErrorIs(t, err, ErrNotFound)

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	_, err = first(cancelled, make(chan *HubService))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAddressHelpers(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, mergeAddresses([]string{"a", "b"}, []string{"b", "c"}))
	assert.Equal(t, []string{"a"}, removeAddresses([]string{"a", "b"}, []string{"b", "x"}))
}
