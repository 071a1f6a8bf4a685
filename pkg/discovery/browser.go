package discovery

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Browser finds hubs on the local network.
type Browser interface {
	// Browse emits each newly seen hub. The channel is closed when ctx is
	// done.
	Browse(ctx context.Context) (<-chan *HubService, error)

	// FindFirst returns the first hub seen, or ErrNotFound once the browse
	// timeout elapses.
	FindFirst(ctx context.Context) (*HubService, error)

	// Stop cancels all active browsing.
	Stop()
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds FindFirst. Default: 10 seconds.
	BrowseTimeout time.Duration

	// Interface restricts browsing to one network interface.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{BrowseTimeout: BrowseTimeout}
}

// MDNSBrowser implements Browser using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig

	mu      sync.Mutex
	cancels []context.CancelFunc
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = BrowseTimeout
	}
	return &MDNSBrowser{config: config}
}

// Browse searches for hubs. Services are aggregated by instance name.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *HubService, error) {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	out := make(chan *HubService)

	go func() {
		defer close(out)
		aggregate(ctx, entries, removed, out)
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.browserOptions()...)
	}()

	return out, nil
}

// FindFirst returns the first hub that answers.
func (b *MDNSBrowser) FindFirst(ctx context.Context) (*HubService, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.BrowseTimeout)
	defer cancel()

	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	return first(ctx, results)
}

// Stop cancels all active browsing operations.
func (b *MDNSBrowser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
}

func (b *MDNSBrowser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		if iface, err := net.InterfaceByName(b.config.Interface); err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

func first(ctx context.Context, results <-chan *HubService) (*HubService, error) {
	select {
	case svc, ok := <-results:
		if !ok || svc == nil {
			return nil, ErrNotFound
		}
		return svc, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrNotFound
		}
		return nil, ctx.Err()
	}
}

// aggregate merges entries by instance name and emits each new hub once.
func aggregate(ctx context.Context, entries, removed <-chan *zeroconf.ServiceEntry, out chan<- *HubService) {
	services := make(map[string]*HubService)
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			svc := entryToHub(entry)
			if svc == nil {
				continue
			}
			if existing, found := services[svc.InstanceName]; found {
				existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
				continue
			}
			services[svc.InstanceName] = svc
			select {
			case out <- svc:
			case <-ctx.Done():
				return
			}

		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			if existing, found := services[entry.Instance]; found {
				existing.Addresses = removeAddresses(existing.Addresses, entryAddresses(entry))
				if len(existing.Addresses) == 0 {
					delete(services, entry.Instance)
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

// entryToHub converts a zeroconf entry, or returns nil if it is not a hub.
func entryToHub(entry *zeroconf.ServiceEntry) *HubService {
	if entry == nil {
		return nil
	}
	svc := &HubService{
		InstanceName: entry.Instance,
		Host:         entry.HostName,
		Port:         uint16(entry.Port),
		Addresses:    entryAddresses(entry),
	}
	if err := DecodeHubTXT(StringsToTXTRecords(entry.Text), svc); err != nil {
		return nil
	}
	return svc
}

func entryAddresses(entry *zeroconf.ServiceEntry) []string {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

func removeAddresses(addresses, gone []string) []string {
	drop := make(map[string]bool, len(gone))
	for _, addr := range gone {
		drop[addr] = true
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !drop[addr] {
			result = append(result, addr)
		}
	}
	return result
}

var _ Browser = (*MDNSBrowser)(nil)
