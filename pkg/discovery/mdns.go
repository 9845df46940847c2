package discovery

import (
	"context"
	"fmt"
	"maps"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Config configures advertisers and browsers.
type Config struct {
	// Interface restricts mDNS to one network interface. Empty uses all.
	Interface string

	// TTL of published records. Zero uses the zeroconf default.
	TTL time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{TTL: DefaultTTL}
}

func (c Config) interfaces() []net.Interface {
	if c.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(c.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Advertiser publishes service instances via zeroconf.
type Advertiser struct {
	config Config

	mu      sync.Mutex
	servers map[string]*zeroconf.Server // keyed by instance name
}

// NewAdvertiser creates an mDNS advertiser.
func NewAdvertiser(config Config) *Advertiser {
	return &Advertiser{
		config:  config,
		servers: make(map[string]*zeroconf.Server),
	}
}

// Advertise starts publishing info, replacing an earlier instance of the
// same name.
func (a *Advertiser) Advertise(ctx context.Context, info ServiceInfo) error {
	info = info.withDefaults()
	if err := info.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if server, exists := a.servers[info.Instance]; exists {
		server.Shutdown()
		delete(a.servers, info.Instance)
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		info.Instance,
		info.Service,
		info.Domain,
		info.Port,
		TXTToStrings(info.TXT),
		a.config.interfaces(),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", info.Instance, err)
	}

	a.servers[info.Instance] = server
	return nil
}

// Update replaces the TXT records of an advertised instance.
func (a *Advertiser) Update(instance string, txt map[string]string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	server, exists := a.servers[instance]
	if !exists {
		return ErrNotFound
	}
	server.SetText(TXTToStrings(txt))
	return nil
}

// Stop withdraws one instance.
func (a *Advertiser) Stop(instance string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	server, exists := a.servers[instance]
	if !exists {
		return ErrNotFound
	}
	server.Shutdown()
	delete(a.servers, instance)
	return nil
}

// StopAll withdraws every instance.
func (a *Advertiser) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for name, server := range a.servers {
		server.Shutdown()
		delete(a.servers, name)
	}
}

// Advertised returns the names of the published instances.
func (a *Advertiser) Advertised() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.servers))
	for name := range a.servers {
		names = append(names, name)
	}
	return names
}

// Browser looks up service instances via zeroconf.
type Browser struct {
	config Config
}

// NewBrowser creates an mDNS browser.
func NewBrowser(config Config) *Browser {
	return &Browser{config: config}
}

// Browse searches for instances of service until ctx is done. Each
// instance is emitted once; addresses from later answers are merged into
// it. The channel is closed when browsing ends.
func (b *Browser) Browse(ctx context.Context, service, domain string) (<-chan *Service, error) {
	if service == "" {
		service = DefaultService
	}
	if domain == "" {
		domain = DefaultDomain
	}

	out := make(chan *Service)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	var opts []zeroconf.ClientOption
	if ifaces := b.config.interfaces(); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}

	go aggregate(ctx, entries, removed, out)
	go func() {
		_ = zeroconf.Browse(ctx, service, domain, entries, removed, opts...)
	}()

	return out, nil
}

// Find returns the first instance named instance. Without a deadline on
// ctx the search is bounded by BrowseTimeout.
func (b *Browser) Find(ctx context.Context, service, instance string) (*Service, error) {
	var cancel context.CancelFunc
	if _, ok := ctx.Deadline(); ok {
		ctx, cancel = context.WithCancel(ctx)
	} else {
		ctx, cancel = context.WithTimeout(ctx, BrowseTimeout)
	}
	defer cancel()

	results, err := b.Browse(ctx, service, "")
	if err != nil {
		return nil, err
	}
	for {
		select {
		case svc, ok := <-results:
			if !ok {
				return nil, ErrNotFound
			}
			if svc.Instance == instance {
				return svc, nil
			}
		case <-ctx.Done():
			return nil, ErrNotFound
		}
	}
}

// aggregate merges zeroconf answers per instance name and forwards new
// instances to out.
func aggregate(ctx context.Context, entries, removed <-chan *zeroconf.ServiceEntry, out chan<- *Service) {
	defer close(out)

	services := make(map[string]*Service)
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			svc := entryToService(entry)
			if existing, found := services[svc.Instance]; found {
				existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
				continue
			}
			services[svc.Instance] = svc
			select {
			case out <- cloneService(svc):
			case <-ctx.Done():
				return
			}

		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			if existing, found := services[entry.Instance]; found {
				existing.Addresses = removeAddresses(existing.Addresses, ipStrings(entry.AddrIPv4, entry.AddrIPv6))
				if len(existing.Addresses) == 0 {
					delete(services, entry.Instance)
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

func entryToService(entry *zeroconf.ServiceEntry) *Service {
	return &Service{
		Instance:  entry.Instance,
		Host:      entry.HostName,
		Port:      entry.Port,
		Addresses: ipStrings(entry.AddrIPv4, entry.AddrIPv6),
		TXT:       StringsToTXT(entry.Text),
	}
}

// cloneService copies svc so the receiver does not race with later merges.
func cloneService(svc *Service) *Service {
	c := *svc
	c.Addresses = append([]string(nil), svc.Addresses...)
	c.TXT = maps.Clone(svc.TXT)
	return &c
}
